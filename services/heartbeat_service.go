package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
)

const heartbeatInterval = 30 * time.Second

// heartbeatPayload is what the main backend expects from a node.
type heartbeatPayload struct {
	Name      string `json:"name"`
	PublicURL string `json:"publicUrl"`
	ServerID  string `json:"serverId"`
	Region    string `json:"region"`
	Version   string `json:"version"`
}

// HeartbeatService announces this node to the main backend so it shows
// up in the directory. Failures are logged once per miss and otherwise
// ignored; the node works fine without the directory.
type HeartbeatService interface {
	Run(ctx context.Context)
}

type heartbeatService struct {
	url     string
	client  *httpclient.Client
	payload heartbeatPayload
}

// NewHeartbeatService creates the heartbeat loop. serverID is the short
// public identifier, not the internal guild id.
func NewHeartbeatService(backendURL, name, publicURL, serverID, region, version string) HeartbeatService {
	return &heartbeatService{
		url:    strings.TrimRight(backendURL, "/") + "/api/hosts/heartbeat",
		client: httpclient.NewClient(httpclient.WithHTTPTimeout(10 * time.Second)),
		payload: heartbeatPayload{
			Name:      name,
			PublicURL: publicURL,
			ServerID:  serverID,
			Region:    region,
			Version:   version,
		},
	}
}

func (s *heartbeatService) Run(ctx context.Context) {
	s.beat()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.beat()
		case <-ctx.Done():
			return
		}
	}
}

func (s *heartbeatService) beat() {
	body, err := json.Marshal(s.payload)
	if err != nil {
		return
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	resp, err := s.client.Post(s.url, bytes.NewReader(body), headers)
	if err != nil {
		log.Printf("[heartbeat] %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[heartbeat] backend returned %d", resp.StatusCode)
	}
}
