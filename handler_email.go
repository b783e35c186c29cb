package main

import (
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"opreg/internal/response"
	"opreg/internal/validation"
)

// SMTPSendFunc is the function used to send emails. Override in tests.
var SMTPSendFunc = smtp.SendMail

type EmailConfig struct {
	ID           int    `json:"id"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password"`
	FromAddress  string `json:"from_address"`
	FromName     string `json:"from_name"`
	Enabled      int    `json:"enabled"`
}

type EmailLogEntry struct {
	ID      int    `json:"id"`
	To      string `json:"to_address"`
	CC      string `json:"cc_list"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	SentAt  string `json:"sent_at"`
}

func handleGetEmailConfig(w http.ResponseWriter, r *http.Request) {
	var c EmailConfig
	err := db.QueryRow("SELECT id, COALESCE(smtp_host,''), COALESCE(smtp_port,587), COALESCE(smtp_user,''), COALESCE(smtp_password,''), COALESCE(from_address,''), COALESCE(from_name,'Register'), enabled FROM email_config WHERE id=1").
		Scan(&c.ID, &c.SMTPHost, &c.SMTPPort, &c.SMTPUser, &c.SMTPPassword, &c.FromAddress, &c.FromName, &c.Enabled)
	if err != nil {
		response.JSON(w, EmailConfig{ID: 1, SMTPPort: 587, FromName: "Register"})
		return
	}
	if c.SMTPPassword != "" {
		c.SMTPPassword = "****"
	}
	response.JSON(w, c)
}

func handleUpdateEmailConfig(w http.ResponseWriter, r *http.Request) {
	var c EmailConfig
	if err := response.DecodeBody(r, &c); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	if c.SMTPPassword == "****" {
		var existing string
		db.QueryRow("SELECT COALESCE(smtp_password,'') FROM email_config WHERE id=1").Scan(&existing)
		c.SMTPPassword = existing
	}

	if c.SMTPPort <= 0 {
		c.SMTPPort = 587
	}

	_, err := db.Exec(`INSERT OR REPLACE INTO email_config (id, smtp_host, smtp_port, smtp_user, smtp_password, from_address, from_name, enabled)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.FromAddress, c.FromName, c.Enabled)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	logAudit(getUsername(r), AuditActionUpdate, "email_config", "1", "Updated email configuration")
	c.ID = 1
	if c.SMTPPassword != "" {
		c.SMTPPassword = "****"
	}
	response.JSON(w, c)
}

func handleTestEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To string `json:"to"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid request body", 400)
		return
	}
	var ve validation.ValidationErrors
	validation.RequireField(&ve, "to", body.To)
	validation.ValidateEmail(&ve, "to", body.To)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	logAudit(getUsername(r), AuditActionUpdate, "email_config", "1", "Test email to "+body.To)

	if err := sendAlertEmail(body.To, nil, "Register Test Email",
		"This is a test email from the operational register. If you received this, email notifications are configured correctly."); err != nil {
		response.Err(w, "send failed: "+err.Error(), 500)
		return
	}
	response.JSON(w, map[string]string{"status": "sent", "to": body.To})
}

func handleListEmailLog(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id, to_address, COALESCE(cc_list,''), subject, COALESCE(body,''), status, COALESCE(error,''), sent_at FROM email_log ORDER BY sent_at DESC LIMIT 100")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []EmailLogEntry
	for rows.Next() {
		var e EmailLogEntry
		rows.Scan(&e.ID, &e.To, &e.CC, &e.Subject, &e.Body, &e.Status, &e.Error, &e.SentAt)
		items = append(items, e)
	}
	if items == nil {
		items = []EmailLogEntry{}
	}
	response.JSON(w, items)
}

func getEmailConfig() (*EmailConfig, error) {
	var c EmailConfig
	err := db.QueryRow("SELECT id, COALESCE(smtp_host,''), COALESCE(smtp_port,587), COALESCE(smtp_user,''), COALESCE(smtp_password,''), COALESCE(from_address,''), COALESCE(from_name,'Register'), enabled FROM email_config WHERE id=1").
		Scan(&c.ID, &c.SMTPHost, &c.SMTPPort, &c.SMTPUser, &c.SMTPPassword, &c.FromAddress, &c.FromName, &c.Enabled)
	if err != nil {
		return nil, err
	}
	if c.Enabled == 0 || c.SMTPHost == "" {
		return nil, fmt.Errorf("email not configured or disabled")
	}
	return &c, nil
}

// sendAlertEmail delivers one message and records the attempt in
// email_log. cc recipients ride on the same envelope.
func sendAlertEmail(to string, cc []string, subject, body string) error {
	c, err := getEmailConfig()
	if err != nil {
		return err
	}

	from := c.FromAddress
	if from == "" {
		from = c.SMTPUser
	}

	headers := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\n", c.FromName, from, to)
	if len(cc) > 0 {
		headers += "Cc: " + strings.Join(cc, ", ") + "\r\n"
	}
	msg := headers + fmt.Sprintf("Subject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		subject, body)

	addr := fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
	var auth smtp.Auth
	if c.SMTPUser != "" {
		auth = smtp.PlainAuth("", c.SMTPUser, c.SMTPPassword, c.SMTPHost)
	}

	recipients := append([]string{to}, cc...)
	sendErr := SMTPSendFunc(addr, auth, from, recipients, []byte(msg))

	status := "sent"
	errStr := ""
	if sendErr != nil {
		status = "failed"
		errStr = sendErr.Error()
	}
	db.Exec("INSERT INTO email_log (to_address, cc_list, subject, body, status, error, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		to, strings.Join(cc, ", "), subject, body, status, errStr, time.Now().Format("2006-01-02 15:04:05"))

	return sendErr
}
