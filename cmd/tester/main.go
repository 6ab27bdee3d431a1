// Command tester is a terminal customer: it authenticates with a shop key,
// sends every stdin line as a message and prints what the server pushes.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"shop-chat/protocol"
	"sync"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL     string `envconfig:"CHAT_URL" default:"ws://localhost:8080/ws"`
	ShopKey string `envconfig:"SHOP_KEY" required:"true"`
	ShopID  string `envconfig:"SHOP_ID"`
	UserID  string `envconfig:"USER_ID" default:"tester"`
	// STAFF_TOKEN switches to a staff session, ShopKey is then ignored
	StaffToken string `envconfig:"STAFF_TOKEN"`
	// CONVERSATION_ID is required for staff, who must name the conversation
	ConversationID string `envconfig:"CONVERSATION_ID"`
	Colours        bool   `envconfig:"COLOURS" default:"true"`
}

type client struct {
	config Config
	ws     *websocket.Conn
	mu     sync.Mutex
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("config: %v", err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(config.URL, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", config.URL, err)
	}
	defer func() { _ = ws.Close() }()
	c := &client{config: config, ws: ws}

	auth := protocol.AuthPayload{ShopKey: config.ShopKey, ShopID: config.ShopID, UserID: config.UserID}
	if config.StaffToken != "" {
		auth = protocol.AuthPayload{SessionToken: config.StaffToken}
	}
	if err := c.send(protocol.Auth, auth); err != nil {
		log.Fatalf("auth: %v", err)
	}

	go c.readLoop()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		err := c.send(protocol.SendMessage, protocol.SendMessagePayload{
			ConversationID: config.ConversationID,
			Content:        line,
		})
		if err != nil {
			log.Fatalf("send: %v", err)
		}
	}
}

func (c *client) send(t protocol.Type, payload any) error {
	env, err := protocol.New(t, payload)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.print(color.FgRed, "closed", err.Error())
			os.Exit(0)
		}
		env, err := protocol.Decode(data)
		if err != nil {
			c.print(color.FgRed, "garbage", string(data))
			continue
		}
		switch env.Type {
		case protocol.Ping:
			_ = c.send(protocol.Pong, nil)
			continue
		case protocol.Error:
			c.print(color.FgRed, string(env.Type), pretty(env.Payload))
		case protocol.NewUserMessage, protocol.StaffMessage, protocol.NewMessage:
			c.print(color.FgGreen, string(env.Type), pretty(env.Payload))
		default:
			c.print(color.FgCyan, string(env.Type), pretty(env.Payload))
		}
	}
}

func (c *client) print(colour color.Color, label, body string) {
	header := fmt.Sprintf("[%s]", label)
	if c.config.Colours {
		header = colour.Render(header)
	}
	fmt.Println(header, body)
}

func pretty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, _ := json.Marshal(v)
	return string(out)
}
