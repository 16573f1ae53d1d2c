package e2e

import (
	relaygrpc "chat-relay/grpc"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// BaseRelaySuite talks to a running relay over its public surfaces.
type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment and waits for the relay to report SERVING.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HTTPAddr == "" {
		s.T().Skip("RELAY_HTTP_ADDR is not set")
	}

	conn, err := grpc.NewClient(s.Config.GrpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err)
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(relaygrpc.WaitForHealth(ctx, conn, relaygrpc.ServiceName))
}

func (s *BaseRelaySuite) step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Client is one WebSocket participant.
type Client struct {
	s    *BaseRelaySuite
	conn *websocket.Conn
	ID   string
	Name string
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Join opens a connection as username and returns once the server sent its identity.
func (s *BaseRelaySuite) Join(username string) *Client {
	s.step("Connect " + username)
	target := "ws" + strings.TrimPrefix(s.Config.HTTPAddr, "http") + "/ws?username=" + url.QueryEscape(username)
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })

	c := &Client{s: s, conn: conn, Name: username}
	var me struct {
		ID string `json:"id"`
	}
	c.Expect("connected", &me)
	c.ID = me.ID
	return c
}

func (c *Client) Send(event string, data any) {
	raw, err := json.Marshal(data)
	c.s.Require().NoError(err)
	c.s.Require().NoError(c.conn.WriteJSON(frame{Event: event, Data: raw}))
}

// Expect skips frames until one named event arrives and decodes its data into v.
func (c *Client) Expect(event string, v any) {
	c.ExpectWhere(event, v, func() bool { return true })
}

// ExpectWhere is Expect for the first matching frame that also satisfies match once decoded.
func (c *Client) ExpectWhere(event string, v any, match func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	c.s.Require().NoError(c.conn.SetReadDeadline(deadline))
	for {
		var f frame
		c.s.Require().NoError(c.conn.ReadJSON(&f), "waiting for %s as %s", event, c.Name)
		if c.s.Config.DebugJSON {
			c.s.T().Logf("%s <- %s %s", c.Name, f.Event, string(f.Data))
		}
		if f.Event != event {
			continue
		}
		if v != nil {
			c.s.Require().NoError(json.Unmarshal(f.Data, v))
		}
		if match() {
			return
		}
	}
}
