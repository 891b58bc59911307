package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/feed"
	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
	"github.com/kelvinkbk/xavlink-sub001/internal/models"
	"github.com/kelvinkbk/xavlink-sub001/internal/session"
)

var (
	authorStyle  = color.New(color.FgCyan, color.Bold)
	dimStyle     = color.New(color.Faint)
	noticeStyle  = color.New(color.FgYellow)
	counterStyle = color.New(color.FgGreen)
)

// newWatchCommand builds the live terminal view: the feed and pushed
// notifications, printed as they arrive, until interrupted.
func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream the feed and notifications to the terminal",
		Long:  "Stream the home feed and pushed notifications to the terminal over the realtime channel until interrupted.",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			c, err := buildClient(ctx)
			if err != nil {
				fail(err)
			}
			defer c.Close()

			if c.Session.State() != session.Authenticated {
				fail(apperrors.UnauthorizedError("watch"))
			}

			c.ServeMetrics()

			bridge := c.Bridge()
			var events feed.Events
			if bridge == nil {
				noticeStyle.Println("Realtime channel unavailable; showing a static feed snapshot.")
			} else {
				events = bridge
				unsub := bridge.OnNewNotification(func(n models.Notification) {
					noticeStyle.Printf("🔔 %s\n", n.Text)
				})
				defer unsub()
			}

			view := feed.New(c.API, events)
			defer view.Close()

			// Serializes rendering between the initial load and realtime
			// handlers.
			var renderMu sync.Mutex
			rendered := make(map[string]bool)
			view.OnChange(func() {
				renderMu.Lock()
				defer renderMu.Unlock()
				for _, post := range view.Posts() {
					if rendered[post.ID] {
						continue
					}
					rendered[post.ID] = true
					printPost(post)
				}
			})

			if err := view.Load(ctx); err != nil {
				fail(err)
			}

			if bridge == nil {
				return
			}

			// Periodic status line from the local counter mirrors.
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					state := "connected"
					if !metrics.IsConnected() {
						state = "disconnected"
					}
					dimStyle.Printf("-- %s | events %d | reconnects %d --\n",
						state, metrics.GetEventsReceivedCount(), metrics.GetReconnectCount())
				}
			}
		},
	}
}

func printPost(post models.Post) {
	authorStyle.Print(post.AuthorName)
	dimStyle.Printf("  %s\n", post.CreatedAt.Format(time.RFC822))
	fmt.Println(post.Text)
	if post.ImageURL != "" {
		dimStyle.Printf("[image] %s\n", post.ImageURL)
	}
	counterStyle.Printf("♥ %d   💬 %d\n\n", post.LikesCount, post.CommentsCount)
}
