// Package main drives booking conversations end to end against a running API.
//
// Scenarios:
//   - happy-path: welcome, service, date, time, confirm, booked
//   - typed-input: the same flow answered with free text and list numbers
//   - my-appointments: a booked contact sees and opens their appointment
//   - reminders: the operator endpoint reports the reminder queued by a booking
//
// Usage:
//
//	API_BASE_URL=... TENANT_ID=... OPERATOR_JWT_SECRET=... go run scripts/e2e/run_e2e.go [scenario-name]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	apiBase   string
	tenantID  string
	jwtSecret string
	client    = &http.Client{Timeout: 15 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...any) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type reply struct {
	Content string   `json:"content"`
	Choices []choice `json:"choices"`
	State   string   `json:"state"`
}

func (r *reply) firstWithPrefix(prefix string) (choice, bool) {
	for _, c := range r.Choices {
		if strings.HasPrefix(c.ID, prefix) {
			return c, true
		}
	}
	return choice{}, false
}

func newContact() string {
	return fmt.Sprintf("e2e-%d", time.Now().UnixNano())
}

func turn(contact, text, selectedID string) (*reply, error) {
	body, _ := json.Marshal(map[string]string{
		"contact_id":  contact,
		"text":        text,
		"selected_id": selectedID,
	})
	url := fmt.Sprintf("%s/tenants/%s/conversations/turn", apiBase, tenantID)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("turn returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out reply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func operatorToken() (string, error) {
	claims := jwt.MapClaims{
		"sub":     "e2e",
		"tenants": []string{tenantID},
		"exp":     time.Now().Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

// book walks a fresh contact through the whole flow by selected ids and
// returns the final reply.
func book(t *T, contact string) *reply {
	steps := []struct {
		prefix string
		want   string
	}{
		{"book", "choose_service"},
		{"svc_", "more_services"},
		{"continue", "choose_date"},
		{"day_", "choose_time"},
		{"time_", "confirm"},
		{"confirm", "booked"},
	}

	r, err := turn(contact, "hi", "")
	if err != nil {
		t.fatalf("greeting: %v", err)
		return nil
	}
	t.check("greeting lands on welcome", r.State == "welcome")

	for _, step := range steps {
		c, ok := r.firstWithPrefix(step.prefix)
		if !ok {
			t.fatalf("state %s offered no %q choice", r.State, step.prefix)
			return nil
		}
		if r, err = turn(contact, "", c.ID); err != nil {
			t.fatalf("select %s: %v", c.ID, err)
			return nil
		}
		t.check(fmt.Sprintf("%s leads to %s", c.ID, step.want), r.State == step.want)
	}
	return r
}

func testHappyPath(t *T) {
	r := book(t, newContact())
	if r == nil {
		return
	}
	t.check("booked reply mentions the time", strings.Contains(r.Content, ":"))
}

func testTypedInput(t *T) {
	contact := newContact()
	if _, err := turn(contact, "hello", ""); err != nil {
		t.fatalf("greeting: %v", err)
		return
	}
	r, err := turn(contact, "book an appointment", "")
	if err != nil {
		t.fatalf("typed booking: %v", err)
		return
	}
	t.check("typed label resolves", r.State == "choose_service")

	r, err = turn(contact, "1", "")
	if err != nil {
		t.fatalf("ordinal: %v", err)
		return
	}
	t.check("list number picks a service", r.State == "more_services")

	r, err = turn(contact, "menu", "")
	if err != nil {
		t.fatalf("menu: %v", err)
		return
	}
	t.check("menu shortcut returns to welcome", r.State == "welcome")
}

func testMyAppointments(t *T) {
	contact := newContact()
	if book(t, contact) == nil {
		return
	}
	r, err := turn(contact, "", "my_appointments")
	if err != nil {
		t.fatalf("my appointments: %v", err)
		return
	}
	t.check("lists appointments", r.State == "my_appointments")
	appt, ok := r.firstWithPrefix("appt_")
	t.check("offers the new appointment", ok)
	if !ok {
		return
	}
	r, err = turn(contact, "", appt.ID)
	if err != nil {
		t.fatalf("open appointment: %v", err)
		return
	}
	t.check("opens manage view", r.State == "manage_appointment")
}

func testReminders(t *T) {
	if jwtSecret == "" {
		fmt.Println("    SKIP: OPERATOR_JWT_SECRET not set")
		return
	}
	if book(t, newContact()) == nil {
		return
	}
	token, err := operatorToken()
	if err != nil {
		t.fatalf("sign token: %v", err)
		return
	}
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/admin/tenants/%s/reminders/stats", apiBase, tenantID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.fatalf("stats: %v", err)
		return
	}
	defer resp.Body.Close()
	t.check("stats answers 200", resp.StatusCode == http.StatusOK)

	var stats struct {
		Pending int64 `json:"pending"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&stats)
	t.check("booking queued a reminder", stats.Pending > 0)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	tenantID = os.Getenv("TENANT_ID")
	jwtSecret = os.Getenv("OPERATOR_JWT_SECRET")
	if apiBase == "" || tenantID == "" {
		fmt.Println("API_BASE_URL and TENANT_ID are required")
		os.Exit(2)
	}

	scenarios := []scenario{
		{"happy-path", testHappyPath},
		{"typed-input", testTypedInput},
		{"my-appointments", testMyAppointments},
		{"reminders", testReminders},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}
		fmt.Printf("\n=== %s ===\n", s.Name)
		t := &T{name: s.Name}
		s.Fn(t)
		totalPassed += t.passed
		totalFailed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
