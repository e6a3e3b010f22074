package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier func(token string) (string, error)

// RegisterRoutes mounts /ws/:userID. Browsers cannot set headers on websocket
// upgrades, so when verify is set the token comes from the token query
// parameter and must belong to the followed user.
func RegisterRoutes(r fiber.Router, hub *Hub, verify TokenVerifier) {
	guard := func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if verify != nil {
			userID, err := verify(c.Query("token"))
			if err != nil || userID != c.Params("userID") {
				return fiber.NewError(fiber.StatusUnauthorized, "stream not authorized")
			}
		}
		return c.Next()
	}

	r.Get("/ws/:userID", guard, websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("userID"))
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
