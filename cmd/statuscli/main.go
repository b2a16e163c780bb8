package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

type statusDoc struct {
	Devices []struct {
		Name      string `json:"name"`
		IP        string `json:"ip"`
		LatencyMS *int64 `json:"latency_milliseconds"`
	} `json:"devices"`
	Domains *[]struct {
		Domain string `json:"domain"`
		Status int    `json:"status"`
	} `json:"domains"`
}

func main() {
	def := os.Getenv("API_BASE")
	if def == "" {
		def = "http://localhost:4901"
	}
	api := flag.String("api", def, "homewatch base URL")
	flag.Parse()

	if err := run(os.Stdout, strings.TrimRight(*api, "/")); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(out io.Writer, base string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/status")
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status: %s", resp.Status)
	}

	var doc statusDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	return render(out, doc)
}

func render(out io.Writer, doc statusDoc) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tIP\tLATENCY")
	for _, d := range doc.Devices {
		lat := "unreachable"
		if d.LatencyMS != nil {
			lat = fmt.Sprintf("%d ms", *d.LatencyMS)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.IP, lat)
	}
	if doc.Domains != nil {
		fmt.Fprintln(tw, "\t\t")
		fmt.Fprintln(tw, "DOMAIN\tSTATUS\t")
		for _, d := range *doc.Domains {
			st := "no response"
			if d.Status != 0 {
				st = fmt.Sprint(d.Status)
			}
			fmt.Fprintf(tw, "%s\t%s\t\n", d.Domain, st)
		}
	}
	return tw.Flush()
}
