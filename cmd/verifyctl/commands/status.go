package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

// statusView is the printable form of a verification status.
type statusView struct {
	Identity    string     `json:"identity" yaml:"identity"`
	Verified    bool       `json:"verified" yaml:"verified"`
	ChannelID   string     `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	ChannelName string     `json:"channel_name,omitempty" yaml:"channel_name,omitempty"`
	Claim       string     `json:"claim,omitempty" yaml:"claim,omitempty"`
	Subscribers uint64     `json:"subscriber_count" yaml:"subscriber_count"`
	Views       uint64     `json:"view_count" yaml:"view_count"`
	Videos      uint64     `json:"video_count" yaml:"video_count"`
	ProvenAt    *time.Time `json:"proven_at,omitempty" yaml:"proven_at,omitempty"`
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <identity>",
		Short: "Show the verified channel for an identity",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	cmd.Flags().String("format", "table", "output format (table, json, yaml)")
	cmd.Flags().Duration("timeout", 10*time.Second, "request timeout")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	format, _ := cmd.Flags().GetString("format")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client := &http.Client{Timeout: timeout}
	view, err := fetchStatus(cmd, client, apiURL, args[0])
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		data, err := yaml.Marshal(view)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "table":
		return displayTable(out, view)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func fetchStatus(cmd *cobra.Command, client *http.Client, apiURL, identity string) (*statusView, error) {
	endpoint := strings.TrimRight(apiURL, "/") + "/verify/identities/" + url.PathEscape(identity)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	view := &statusView{Identity: identity}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return view, nil
	default:
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var record verification.VerifiedIdentityRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	view.Verified = true
	view.ChannelID = record.ChannelID
	if record.ChannelName != nil {
		view.ChannelName = *record.ChannelName
	}
	view.Claim = record.ClaimType.String()
	view.Subscribers = record.SubscriberCount
	view.Views = record.ViewCount
	view.Videos = record.VideoCount
	provenAt := record.ProvenAt
	view.ProvenAt = &provenAt
	return view, nil
}

func displayTable(w io.Writer, view *statusView) error {
	if !view.Verified {
		_, err := fmt.Fprintf(w, "Identity %s: not verified\n", view.Identity)
		return err
	}
	fmt.Fprintf(w, "Identity %s: verified\n\n", view.Identity)
	fmt.Fprintf(w, "  Channel      : %s", view.ChannelID)
	if view.ChannelName != "" {
		fmt.Fprintf(w, " (%s)", view.ChannelName)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Claim        : %s\n", view.Claim)
	fmt.Fprintf(w, "  Subscribers  : %s\n", humanize.Comma(int64(view.Subscribers)))
	fmt.Fprintf(w, "  Views        : %s\n", humanize.Comma(int64(view.Views)))
	fmt.Fprintf(w, "  Videos       : %s\n", humanize.Comma(int64(view.Videos)))
	_, err := fmt.Fprintf(w, "  Proven       : %s\n", humanize.Time(*view.ProvenAt))
	return err
}
