package main

import (
	"bufio"
	"chat-relay/domain"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	RelayURL string `env:"CHAT_RELAY_URL,default=ws://localhost:3001/ws"`
	Username string `env:"CHAT_USERNAME,required=true"`
	Colours  bool   `env:"CHAT_COLOURS,default=true"`
	LogLevel string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run connects to the relay, prints what it pushes and sends what the user types.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := url.Parse(config.RelayURL)
	if err != nil {
		return exitConfig, fmt.Errorf("invalid relay url: %w", err)
	}
	query := target.Query()
	query.Set("username", config.Username)
	target.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", config.RelayURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	s := newSession(config.Colours)
	readErr := make(chan error, 1)
	go func() {
		for {
			var frame inbound
			if err := conn.ReadJSON(&frame); err != nil {
				readErr <- err
				return
			}
			line, err := s.render(frame)
			if err != nil {
				log.Warn("Unreadable frame", "event", frame.Event, "error", err)
				continue
			}
			if line != "" {
				fmt.Println(line)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			frame, local, err := parseLine(line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			switch local {
			case "quit":
				return exitOK, nil
			case "who":
				s.who(os.Stdout)
				continue
			case "help":
				fmt.Println(errUsage)
				continue
			}
			if frame.Event == domain.ReactEvent {
				data := frame.Data.(map[string]string)
				data["messageId"] = s.resolve(data["messageId"])
			}
			if err := conn.WriteJSON(frame); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
			if frame.Event == domain.JoinRoomEvent {
				s.join(frame.Data.(string))
			}
		}
	}
}
