package main

import (
	"net/http"

	"opreg/internal/response"
	"opreg/internal/scheduler"
)

// handleSchedulerRun runs one notification sweep on demand. The sweep
// is triggered externally (cron, systemd timer) rather than by an
// in-process ticker so a fleet of instances does not double-send.
func handleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	sweep := &scheduler.Sweep{
		DB:       db,
		Registry: getRegistry(),
		Hub:      wsHub,
		SendMail: sendAlertEmail,
	}
	summary, err := sweep.Run()
	if err != nil {
		writeErr(w, err)
		return
	}
	logAudit(getUsername(r), AuditActionUpdate, "scheduler", "sweep",
		"Notification sweep completed")
	response.JSON(w, summary)
}
