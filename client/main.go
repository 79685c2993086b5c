// Interactive test client for the pong server. Speaks the JSON event
// protocol over a websocket; type "help" for commands.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func send(c *websocket.Conn, name string, data interface{}) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	return c.WriteJSON(&event{Event: name, Data: raw})
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var evt event
			if err := c.ReadJSON(&evt); err != nil {
				log.Println("Read error:", err)
				return
			}
			if evt.Event == "gameUpdate" {
				// Too chatty at 60 Hz; uncomment while debugging physics.
				continue
			}
			log.Printf("<- RECV %s: %s", evt.Event, string(evt.Data))
		}
	}()

	name := "player1"
	if len(os.Args) > 1 {
		name = os.Args[1]
	}
	if err := send(c, "authenticate", map[string]interface{}{"displayName": name, "userId": time.Now().Unix()}); err != nil {
		log.Fatalf("Write error: %v", err)
	}

	var roomID string
	log.Println("Client started. Commands: create, join <roomId>, leave, ready, rooms, up, down, stop, invite <name>, accept <inviteId>, quit")

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "create":
				err = send(c, "createRoom", map[string]string{"difficulty": "MEDIUM"})
			case "join":
				if len(fields) > 1 {
					roomID = fields[1]
					err = send(c, "joinRoom", map[string]string{"roomId": roomID})
				}
			case "leave":
				err = send(c, "leaveRoom", map[string]string{"roomId": roomID})
			case "ready":
				err = send(c, "playerReady", map[string]string{"roomId": roomID})
			case "rooms":
				err = send(c, "getAvailableRooms", nil)
			case "up", "down":
				err = send(c, "gameInput", map[string]string{"roomId": roomID, "type": "paddleMove", "direction": fields[0]})
			case "stop":
				err = send(c, "gameInput", map[string]string{"roomId": roomID, "type": "paddleStop"})
			case "invite":
				if len(fields) > 1 {
					err = send(c, "inviteCreate", map[string]string{"targetDisplayName": fields[1], "difficulty": "MEDIUM"})
				}
			case "accept":
				if len(fields) > 1 {
					err = send(c, "inviteResponse", map[string]string{"inviteId": fields[1], "response": "accept"})
				}
			case "room":
				if len(fields) > 1 {
					roomID = fields[1]
					fmt.Println("tracking room", roomID)
				}
			case "quit":
				return
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
