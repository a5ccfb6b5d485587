// Command haspctl is a one-shot operator CLI that queries a running
// haspkeyd daemon's status API and prints it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	addrFlag   = flag.String("addr", "http://127.0.0.1:8420", "haspkeyd API base address")
	serialFlag = flag.String("serial", "", "show recent events for this serial instead of token status")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

type tokenStatus struct {
	Serial      string `json:"serial"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	IsInitDone  bool   `json:"isInitDone"`
	IsKeyOpened bool   `json:"isKeyOpened"`
}

type event struct {
	TS      int64  `json:"TS"`
	Serial  string `json:"Serial"`
	MajorFn byte   `json:"MajorFn"`
	Status  byte   `json:"Status"`
	Detail  string `json:"Detail"`
}

func main() {
	log.SetFlags(0)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	if *serialFlag != "" {
		printEvents(client, *serialFlag)
		return
	}
	printTokens(client)
}

func printTokens(client *http.Client) {
	var body struct {
		Tokens []tokenStatus `json:"tokens"`
	}
	if err := getJSON(client, *addrFlag+"/api/v1/tokens", &body); err != nil {
		log.Fatalf("haspctl: %v", err)
	}

	fmt.Println(headerStyle.Render("HASPKEYD TOKENS"))
	for _, t := range body.Tokens {
		state := "FRESH"
		style := failStyle
		switch {
		case t.IsKeyOpened:
			state, style = "OPENED", okStyle
		case t.IsInitDone:
			state, style = "KEYS_SET", okStyle
		}
		fmt.Printf("%-10s %-16s %-18s %s\n", t.Serial, t.Name, t.Fingerprint, style.Render(state))
	}
}

func printEvents(client *http.Client, serial string) {
	var body struct {
		Events []event `json:"events"`
	}
	if err := getJSON(client, *addrFlag+"/api/v1/tokens/"+serial+"/events", &body); err != nil {
		log.Fatalf("haspctl: %v", err)
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("EVENTS for %s", serial)))
	for _, e := range body.Events {
		style := okStyle
		if e.Status != 0 {
			style = failStyle
		}
		fmt.Printf("%s  fn=%#02x  %s  %s\n",
			time.Unix(e.TS, 0).Format(time.RFC3339), e.MajorFn, style.Render(fmt.Sprintf("status=%d", e.Status)), e.Detail)
	}
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(b))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
