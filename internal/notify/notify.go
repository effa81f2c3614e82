/* SPDX-License-Identifier: AGPL-3.0-or-later
 *
 * Zymatik Genomerge - Merge submitter genomic data against a reference panel.
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package notify triggers the completion-notification email. The SMTP
// relay itself is an external collaborator (spec §1 "Out of scope"); this
// package's only contract is "a notification is triggered" with the
// download credentials in the body.
package notify

import (
	"fmt"
	"net/smtp"
)

// Config holds the SMTP relay connection details, sourced from the
// environment (spec §6 "SMTP settings").
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// SendDownloadReady emails the one-shot download token and password to
// the submitter. The password is never persisted (spec §4.5
// "Credentialing": "discard plaintext password after it is placed in the
// notification") — this call is its only appearance outside memory.
func SendDownloadReady(cfg Config, to, jobID, token, password string) error {
	subject := fmt.Sprintf("Your genomerge results are ready (job %s)", jobID)
	body := fmt.Sprintf(
		"Your merge job %s has completed.\r\n\r\n"+
			"Download token: %s\r\nPassword: %s\r\n\r\n"+
			"This password is shown only once; it is not recoverable if lost.\r\n",
		jobID, token, password)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", cfg.From, to, subject, body)

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	if err := smtp.SendMail(cfg.addr(), auth, cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("could not send download-ready notification for job %s: %w", jobID, err)
	}

	return nil
}
