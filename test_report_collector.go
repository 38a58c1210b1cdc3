package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/lethuzulu/pngsecret/internal/scan"
)

// ReportEnvelope mirrors the body posted by the export client
type ReportEnvelope struct {
	SentAt time.Time    `json:"sent_at"`
	Report *scan.Report `json:"report"`
}

func reportsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var envelope ReportEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, "Error parsing report JSON", http.StatusBadRequest)
		return
	}

	report := envelope.Report
	if report == nil {
		http.Error(w, "Envelope carries no report", http.StatusBadRequest)
		return
	}

	// Log comprehensive report information
	log.Printf("📥 SCAN REPORT RECEIVED:")
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  📊 Basic Info:")
	log.Printf("    Report ID: %s", report.ID)
	log.Printf("    Created At: %s", report.CreatedAt.Format(time.RFC3339))
	log.Printf("    Sent At: %s", envelope.SentAt.Format(time.RFC3339))
	log.Printf("    Scan Duration: %s", report.Duration)
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  🔍 Scan Outcome:")
	log.Printf("    Has Signature: %t", report.HasSignature)
	log.Printf("    Total Chunks: %d", report.TotalChunks)
	log.Printf("    CRC Mismatches: %d", report.CRCMismatches)
	log.Printf("    Complete: %t", report.Complete)
	if report.Error != "" {
		log.Printf("    Terminal Error: %s", report.Error)
	}
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  🧩 Chunks:")
	for i, info := range report.Chunks {
		if i >= 10 {
			log.Printf("    ... and %d more", len(report.Chunks)-10)
			break
		}
		if info.Error != "" {
			log.Printf("    [%d] offset=%d ERROR %s", i, info.Offset, info.Error)
			continue
		}
		log.Printf("    [%d] offset=%d type=%s length=%d crc=0x%08x crc_ok=%t", i, info.Offset, info.Type, info.Length, info.CRC, info.CRCOK)
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		log.Printf("  🔑 Authorization header present")
	}

	// Send JSON acknowledgement
	response := map[string]interface{}{
		"status":      "accepted",
		"report_id":   report.ID,
		"received_at": time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ REPORT ACCEPTED: %s", report.ID)
	log.Println("---")
}

func main() {
	http.HandleFunc("/reports", reportsHandler)

	port := ":9090"
	log.Printf("🚀 Test Report Collector starting on port %s", port)
	log.Printf("📡 Endpoint: http://localhost%s/reports", port)
	log.Println("💡 Update your config to use: http://localhost:9090/reports")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
