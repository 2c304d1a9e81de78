/**
 * @description
 * Operator script to close a campaign whose sale ended below its soft cap,
 * without waiting for the next scheduled sweep. It fetches the campaign
 * through the ido-service API, prints its state and asks for confirmation
 * before calling the close endpoint.
 *
 * Usage:
 *   go run ./cmd/ido-close-campaign <campaign-id>
 *
 * @dependencies
 * - github.com/joho/godotenv: Local .env loading.
 * - Environment variables: IDO_API_BASE_URL, IDO_API_TOKEN
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/transfa/ido-service/internal/domain"
)

// apiError is the error body returned by the ido-service.
type apiError struct {
	Error string `json:"error"`
}

type campaignClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: go run ./cmd/ido-close-campaign <campaign-id>")
		os.Exit(1)
	}

	_ = godotenv.Load("../.env", ".env")

	token := os.Getenv("IDO_API_TOKEN")
	if token == "" {
		log.Fatal("IDO_API_TOKEN environment variable is required")
	}
	baseURL := os.Getenv("IDO_API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
		fmt.Println("Using default local URL:", baseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := &campaignClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: &http.Client{Timeout: 15 * time.Second}}
	if err := run(ctx, client, os.Args[1], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("Failed to close campaign: %v", err)
	}
}

// run prints the campaign, asks for confirmation on in and closes it.
func run(ctx context.Context, client *campaignClient, rawID string, in io.Reader, out io.Writer) error {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return fmt.Errorf("invalid campaign id: %w", err)
	}

	fmt.Fprintf(out, "Fetching campaign %s\n", id)
	view, err := client.getCampaign(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Campaign Details:\n")
	fmt.Fprintf(out, "  ID: %s\n", view.ID)
	fmt.Fprintf(out, "  State: %s\n", view.State)
	fmt.Fprintf(out, "  Sold: %d / soft cap %d\n", view.TotalSold, view.SoftCap)
	fmt.Fprintf(out, "  Sale ended: %s\n", time.Unix(view.EndSaleTime, 0).UTC().Format(time.RFC3339))

	if view.State != domain.StateOpen && view.State != domain.StateEndedUnresolved {
		return fmt.Errorf("campaign is %s and cannot be closed", view.State)
	}

	fmt.Fprintf(out, "\nClose this campaign and open refunds? (yes/no): ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	if strings.TrimSpace(answer) != "yes" {
		fmt.Fprintln(out, "Close cancelled.")
		return nil
	}

	result, err := client.closeSoftCap(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Closed campaign %s, state is now %s\n", id, result.Campaign.State)
	return nil
}

func (c *campaignClient) getCampaign(ctx context.Context, id uuid.UUID) (*domain.CampaignView, error) {
	var view domain.CampaignView
	if err := c.do(ctx, http.MethodGet, "/campaigns/"+id.String(), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *campaignClient) closeSoftCap(ctx context.Context, id uuid.UUID) (*domain.OperationResult, error) {
	var result domain.OperationResult
	if err := c.do(ctx, http.MethodPost, "/campaigns/"+id.String()+"/close-soft-cap", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *campaignClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("ido-service error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("ido-service error with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
