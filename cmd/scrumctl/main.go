package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/scrumpilot-io/scrumpilot/internal/config"
)

func main() {
	godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "parse":
		cmdParse(os.Args[2:])
	case "process":
		cmdProcess(os.Args[2:])
	case "sync":
		cmdSync(os.Args[2:])
	case "updates":
		cmdUpdates()
	case "meetings":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: scrumctl meetings <list|show|stats>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdMeetingsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: scrumctl meetings show <id>")
				os.Exit(1)
			}
			cmdMeetingsShow(os.Args[3])
		case "stats":
			cmdMeetingsStats()
		default:
			fmt.Fprintf(os.Stderr, "unknown meetings subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "statuses":
		cmdStatuses()
	case "validate":
		cmdValidate()
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: scrumctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdParse(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	speaker := fs.String("speaker", "", "Attribute updates to this speaker")
	fs.Parse(args)

	transcript := readTranscript(fs.Args())
	body, err := apiPost("/api/transcripts/parse", map[string]string{
		"transcript": transcript,
		"speaker":    *speaker,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	project := fs.String("project", "", "Tracker project ID (default: daemon's project)")
	noSync := fs.Bool("no-sync", false, "Extract and persist without pushing to the tracker")
	fromURL := fs.String("url", "", "Fetch the transcript from this URL instead of args/stdin")
	fs.Parse(args)

	payload := map[string]any{
		"projectId": *project,
		"autoSync":  !*noSync,
	}
	if *fromURL != "" {
		payload["transcriptUrl"] = *fromURL
	} else {
		payload["transcript"] = readTranscript(fs.Args())
	}
	body, err := apiPost("/api/meetings/process", payload)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	issue := fs.String("issue", "", "Issue ID, e.g. #202")
	comment := fs.String("comment", "", "Comment text to post")
	statusTok := fs.String("status", "", "Target status (completed|in-progress|blocked)")
	speaker := fs.String("speaker", "scrumctl", "Speaker attribution")
	fs.Parse(args)

	if *issue == "" {
		fmt.Fprintln(os.Stderr, "usage: scrumctl sync --issue <id> [--comment <text>] [--status <status>]")
		os.Exit(1)
	}

	body, err := apiPost("/api/sync", map[string]any{
		"issueId":            *issue,
		"speaker":            *speaker,
		"action":             *comment,
		"status":             *statusTok,
		"shouldAddComment":   *comment != "",
		"shouldChangeStatus": *statusTok != "",
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdUpdates() {
	body, err := apiGet("/api/updates/unsynced")
	if err != nil {
		fatal(err)
	}
	var updates []map[string]any
	json.Unmarshal(body, &updates)
	if len(updates) == 0 {
		fmt.Println("no unsynced updates")
		return
	}
	for _, u := range updates {
		fmt.Printf("%-38s %-8s %-12s %s\n", u["id"], u["issueId"], u["speaker"], u["comment"])
	}
}

func cmdMeetingsList(args []string) {
	fs := flag.NewFlagSet("meetings list", flag.ExitOnError)
	project := fs.String("project", "", "Filter by project ID")
	fs.Parse(args)

	path := "/api/meetings"
	if *project != "" {
		path += "?project=" + *project
	}
	body, err := apiGet(path)
	if err != nil {
		fatal(err)
	}
	var meetings []map[string]any
	json.Unmarshal(body, &meetings)
	for _, m := range meetings {
		fmt.Printf("%-38s %-12s attendees=%v\n", m["id"], m["date"], m["attendeeCount"])
	}
}

func cmdMeetingsShow(id string) {
	body, err := apiGet("/api/meetings/" + id)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdMeetingsStats() {
	body, err := apiGet("/api/meetings/stats")
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdStatuses() {
	body, err := apiGet("/api/statuses")
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdValidate() {
	body, err := apiPost("/api/tracker/validate", nil)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

// readTranscript takes the transcript from the remaining args, or stdin when
// none are given (so `cat transcript.txt | scrumctl process` works).
func readTranscript(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		fatal(fmt.Errorf("read stdin: %w", err))
	}
	return string(data)
}

func apiGet(path string) ([]byte, error) {
	return apiDo(http.MethodGet, path, nil)
}

func apiPost(path string, payload any) ([]byte, error) {
	return apiDo(http.MethodPost, path, payload)
}

func apiDo(method, path string, payload any) ([]byte, error) {
	base := envOr("SCRUMPILOT_API_URL", "http://localhost:8080")

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, base+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv("SCRUMPILOT_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("scrumctl — ScrumPilot management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                  Check daemon health")
	fmt.Println("  parse [text]            Extract updates from a transcript (stdin if omitted)")
	fmt.Println("  process [text]          Process a meeting transcript (--project, --no-sync, --url)")
	fmt.Println("  sync                    Push one update (--issue, --comment, --status)")
	fmt.Println("  updates                 List unsynced updates")
	fmt.Println("  meetings list           List meetings (--project)")
	fmt.Println("  meetings show <id>      Show meeting details")
	fmt.Println("  meetings stats          Show meeting statistics")
	fmt.Println("  statuses                List tracker statuses")
	fmt.Println("  validate                Validate tracker credentials")
	fmt.Println("  config validate <path>  Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SCRUMPILOT_API_URL  Daemon URL (default: http://localhost:8080)")
	fmt.Println("  SCRUMPILOT_API_KEY  API key for authentication")
}
