// Command workflow_smoke drives one voucher through the full approval
// chain against a running instance and reports each step. It is meant
// for staging checks after a deploy, not for unit testing.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accounts struct {
	StudentHead credentials `json:"student_head"`
	Faculty     credentials `json:"faculty"`
	DeanSWO     credentials `json:"dean_swo"`
	DeanSW      credentials `json:"dean_sw"`
}

type step struct {
	Name     string
	Status   int
	Duration time.Duration
	Err      error
}

func main() {
	var (
		base         string
		accountsPath string
		timeout      time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&accountsPath, "accounts", "scripts/workflow_smoke/accounts.json", "Path to JSON accounts file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	accs, err := loadAccounts(accountsPath)
	if err != nil {
		log.Fatalf("failed to load accounts: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	runner := &runner{client: client, base: strings.TrimRight(base, "/")}

	studentToken := runner.mustLogin("student_head", accs.StudentHead)
	facultyToken := runner.mustLogin("faculty", accs.Faculty)
	swoToken := runner.mustLogin("dean_swo", accs.DeanSWO)
	swToken := runner.mustLogin("dean_sw", accs.DeanSW)

	voucherID := runner.createVoucher(studentToken)
	runner.post(studentToken, "submit draft", "/api/v1/vouchers/"+voucherID+"/submit", nil)
	runner.post(facultyToken, "faculty approve", "/api/v1/vouchers/"+voucherID+"/approve", map[string]string{"comment": "smoke check"})
	runner.post(swoToken, "dean swo approve", "/api/v1/vouchers/"+voucherID+"/approve", nil)
	runner.post(swToken, "dean sw approve", "/api/v1/vouchers/"+voucherID+"/approve", nil)
	runner.fetchPDFLink(studentToken, voucherID)

	runner.report()
	if runner.failed() {
		os.Exit(1)
	}
}

type runner struct {
	client *http.Client
	base   string
	steps  []step
}

func loadAccounts(path string) (*accounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var accs accounts
	if err := json.Unmarshal(data, &accs); err != nil {
		return nil, err
	}
	return &accs, nil
}

func (r *runner) mustLogin(label string, creds credentials) string {
	body, status, dur, err := r.do(http.MethodPost, "/api/v1/auth/login", "", creds)
	r.steps = append(r.steps, step{Name: "login " + label, Status: status, Duration: dur, Err: err})
	if err != nil || status != http.StatusOK {
		r.report()
		log.Fatalf("login failed for %s (status %d): %v", label, status, err)
	}

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data.AccessToken == "" {
		log.Fatalf("login response for %s missing access token", label)
	}
	return envelope.Data.AccessToken
}

func (r *runner) createVoucher(token string) string {
	payload := map[string]interface{}{
		"title":         "Smoke Check Event",
		"club_name":     "Smoke Club",
		"event_date":    time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		"event_venue":   "Staging Hall",
		"budget_amount": 1000,
	}
	body, status, dur, err := r.do(http.MethodPost, "/api/v1/vouchers", token, payload)
	r.steps = append(r.steps, step{Name: "create voucher", Status: status, Duration: dur, Err: err})
	if err != nil || status != http.StatusCreated {
		r.report()
		log.Fatalf("voucher creation failed (status %d): %v", status, err)
	}

	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data.ID == "" {
		log.Fatalf("voucher creation response missing id")
	}
	return envelope.Data.ID
}

func (r *runner) post(token, name, path string, payload interface{}) {
	_, status, dur, err := r.do(http.MethodPost, path, token, payload)
	r.steps = append(r.steps, step{Name: name, Status: status, Duration: dur, Err: err})
}

func (r *runner) fetchPDFLink(token, voucherID string) {
	_, status, dur, err := r.do(http.MethodGet, "/api/v1/vouchers/"+voucherID+"/pdf", token, nil)
	r.steps = append(r.steps, step{Name: "issue pdf link", Status: status, Duration: dur, Err: err})
}

func (r *runner) do(method, path, token string, payload interface{}) ([]byte, int, time.Duration, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, r.base+path, body)
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, time.Since(start), err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, time.Since(start), err
}

func (r *runner) report() {
	fmt.Println("Workflow Smoke Report")
	fmt.Println("=====================")
	for _, s := range r.steps {
		status := "OK"
		if s.Err != nil || s.Status >= 400 {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s -> %d (%s)\n", status, s.Name, s.Status, s.Duration)
		if s.Err != nil {
			fmt.Printf("  error: %v\n", s.Err)
		}
	}
}

func (r *runner) failed() bool {
	for _, s := range r.steps {
		if s.Err != nil || s.Status >= 400 {
			return true
		}
	}
	return false
}
