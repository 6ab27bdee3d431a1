package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"shop-chat/protocol"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseSocketSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSocketSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ShopKey == "" || s.Config.StaffEmail == "" {
		s.T().Skip("SHOP_KEY and STAFF_EMAIL are required against a running server")
	}
}

// Client is one socket seen from the test.
type Client struct {
	suite *BaseSocketSuite
	name  string
	ws    *websocket.Conn
}

// Connect opens a socket and consumes connection_established.
func (s *BaseSocketSuite) Connect(name string) *Client {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	ws, _, err := websocket.DefaultDialer.Dial(s.Config.ChatURL, nil)
	s.Require().NoError(err, "Failed to connect to "+s.Config.ChatURL)
	c := &Client{suite: s, name: name, ws: ws}
	s.T().Cleanup(func() { _ = ws.Close() })
	c.Expect(protocol.ConnectionEstablished)
	return c
}

func (c *Client) Send(t protocol.Type, payload any) {
	env, err := protocol.New(t, payload)
	c.suite.Require().NoError(err)
	data, err := protocol.Encode(env)
	c.suite.Require().NoError(err)
	c.log("->", data)
	c.suite.Require().NoError(c.ws.WriteMessage(websocket.TextMessage, data))
}

// Expect reads frames until one of type t arrives, answering pings on the way.
func (c *Client) Expect(t protocol.Type) protocol.Envelope {
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.suite.Require().NoError(c.ws.SetReadDeadline(deadline))
		_, data, err := c.ws.ReadMessage()
		c.suite.Require().NoError(err, "%s waiting for %s", c.name, t)
		c.log("<-", data)
		env, err := protocol.Decode(data)
		c.suite.Require().NoError(err)
		if env.Type == protocol.Ping {
			c.Send(protocol.Pong, nil)
			continue
		}
		if env.Type == t {
			return env
		}
		c.suite.Require().NotEqual(protocol.Error, env.Type, "%s got an error frame: %s", c.name, env.Payload)
	}
}

func (c *Client) log(direction string, data []byte) {
	if !c.suite.Config.DebugJSON {
		return
	}
	c.suite.T().Logf("%s %s %s", c.name, direction, data)
}

// Login opens a staff session over HTTP and returns its token.
func (s *BaseSocketSuite) Login() string {
	body, _ := json.Marshal(map[string]string{"email": s.Config.StaffEmail, "password": s.Config.StaffPassword})
	res, err := http.Post(s.Config.APIURL+"/api/staff/login", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer func() { _ = res.Body.Close() }()
	s.Require().Equal(http.StatusOK, res.StatusCode)

	var login struct {
		Token string `json:"token"`
	}
	s.Require().NoError(json.NewDecoder(res.Body).Decode(&login))
	return login.Token
}

func Bind[T any](s *BaseSocketSuite, env protocol.Envelope) T {
	var v T
	s.Require().NoError(json.Unmarshal(env.Payload, &v))
	return v
}
