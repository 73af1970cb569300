package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	finish(resp)
}

// faultCmd injects host-side failures (failing ray casts, frozen agents,
// ignored nudges) or removes an obstacle.
func faultCmd(args []string) {
	fs := flag.NewFlagSet("fault", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	rays := fs.Int("rays", 0, "fail the next N ray casts")
	rayStatus := fs.Int("status", -1, "ray status for failed casts (negative)")
	agent := fs.String("agent", "", "agent id for -frozen / -nudge_blocked")
	frozen := fs.String("frozen", "", "true|false")
	nudgeBlocked := fs.String("nudge_blocked", "", "true|false")
	removeBox := fs.String("remove_box", "", "drop this obstacle from the course")
	_ = fs.Parse(args)

	q, err := faultQuery(*rays, *rayStatus, *agent, *frozen, *nudgeBlocked, *removeBox)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/fault?" + q.Encode()
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	finish(resp)
}

func faultQuery(rays, rayStatus int, agent, frozen, nudgeBlocked, removeBox string) (url.Values, error) {
	q := url.Values{}
	if rays > 0 {
		if rayStatus >= 0 {
			return nil, fmt.Errorf("-status must be negative")
		}
		q.Set("rays", strconv.Itoa(rays))
		q.Set("status", strconv.Itoa(rayStatus))
	}
	agent = strings.TrimSpace(agent)
	for k, v := range map[string]string{"frozen": frozen, "nudge_blocked": nudgeBlocked} {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("-%s: %v", k, err)
		}
		if agent == "" {
			return nil, fmt.Errorf("-%s requires -agent", k)
		}
		q.Set(k, v)
	}
	if rb := strings.TrimSpace(removeBox); rb != "" {
		q.Set("remove_box", rb)
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("nothing to inject")
	}
	if agent != "" {
		q.Set("agent", agent)
	}
	return q, nil
}

func finish(resp *http.Response) {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
