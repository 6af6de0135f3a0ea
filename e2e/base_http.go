package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pairchat/auth"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

type BaseHTTPSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping e2e suite")
	}
}

// Step prints a colorized header so scenario steps stand out in logs
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Call performs one authenticated request and decodes the JSON response.
// Bodies are dumped when E2E_DEBUG_JSON is enabled.
func (s *BaseHTTPSuite) Call(userID, method, path string, payload, out any) int {
	token, err := auth.GenerateToken(userID, time.Hour)
	s.Require().NoError(err)

	var body io.Reader
	var encoded []byte
	if payload != nil {
		encoded, err = json.Marshal(payload)
		s.Require().NoError(err)
		body = bytes.NewReader(encoded)
	}

	url := strings.TrimSuffix(s.Config.ServerAddr, "/") + path
	req, err := http.NewRequest(method, url, body)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err, "Failed to reach server at "+url)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintln(&logBuilder, "\nREQUEST:")
		fmt.Fprintln(&logBuilder, string(encoded))
		fmt.Fprintln(&logBuilder, "RESPONSE:")
		fmt.Fprintln(&logBuilder, string(raw))
	}
	s.T().Log(logBuilder.String())

	if out != nil && resp.StatusCode < 300 {
		s.Require().NoError(json.Unmarshal(raw, out))
	}
	return resp.StatusCode
}
