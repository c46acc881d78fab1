package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/client"
	"github.com/huddlekit/huddle/internal/domain"
)

const commandTimeout = 10 * time.Second

// runSession pumps engine events to stdout and stdin lines into the room.
// Lines starting with "/" are commands, everything else is chat.
func runSession(eng *client.Engine) error {
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
		case ev, ok := <-eng.Events():
			if !ok {
				return nil
			}
			printEvent(eng, ev)
			if _, done := ev.(client.RoomClosedEvent); done {
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				return leave(eng)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				quit, err := runCommand(eng, line)
				if err != nil {
					fmt.Println("!", err)
				}
				if quit {
					return nil
				}
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			err := eng.SendMessage(ctx, line)
			cancel()
			if err != nil {
				fmt.Println("!", err)
			}
		}
	}
}

func runCommand(eng *client.Engine, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd {
	case "/leave", "/quit":
		return true, leave(eng)
	case "/close":
		if err := eng.CloseRoom(ctx); err != nil {
			return false, err
		}
		return true, nil
	case "/video":
		return false, eng.ToggleVideo(ctx, parseOn(args))
	case "/audio":
		return false, eng.ToggleAudio(ctx, parseOn(args))
	case "/share":
		return false, eng.StartScreenShare(ctx)
	case "/unshare":
		return false, eng.StopScreenShare(ctx)
	case "/record":
		return false, eng.StartRecording(ctx)
	case "/stop-record":
		if err := eng.StopRecording(ctx); err != nil {
			return false, err
		}
		fmt.Printf("* recording stopped, %d chunk(s) buffered\n", eng.Recorder().Chunks())
		return false, nil
	case "/approve", "/deny":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s <user id>", cmd)
		}
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return false, err
		}
		return false, eng.ApproveJoin(ctx, userID, cmd == "/approve")
	case "/history":
		msgs, err := eng.History(ctx)
		if err != nil {
			return false, err
		}
		for _, g := range client.GroupMessages(msgs, 2*time.Minute) {
			printGroup(g)
		}
		return false, nil
	case "/who":
		for _, p := range eng.Roster() {
			fmt.Printf("  %s %s\n", p.DisplayName, participantFlags(p))
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}

func leave(eng *client.Engine) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	err := eng.LeaveRoom(ctx)
	if errors.Is(err, client.ErrNotInRoom) {
		return nil
	}
	return err
}

func parseOn(args []string) bool {
	return len(args) == 0 || args[0] != "off"
}

func printEvent(eng *client.Engine, ev client.Event) {
	switch ev := ev.(type) {
	case client.RosterEvent:
		fmt.Printf("* roster r%d: %d participant(s)\n", ev.Revision, len(ev.Participants))
	case client.ChatEvent:
		msg := ev.Message
		if msg.Kind == domain.MessageSystem {
			fmt.Printf("* %s\n", msg.Body)
			return
		}
		fmt.Printf("<%s> %s\n", msg.AuthorName, msg.Body)
	case client.SettingsEvent:
		fmt.Printf("* settings changed (locked=%v, approval=%v)\n", ev.Settings.Locked, ev.Settings.RequireApproval)
	case client.MediaFlagEvent:
		fmt.Printf("* %s %s=%v\n", displayName(eng, ev.UserID), ev.Kind, ev.Active)
	case client.LinkEvent:
		fmt.Printf("* link to %s: %s\n", displayName(eng, ev.Remote), ev.State)
	case client.RemoteTrackEvent:
		fmt.Printf("* receiving %s from %s\n", ev.Track.Kind(), displayName(eng, ev.Remote))
	case client.ChannelEvent:
		fmt.Printf("* signaling %s\n", ev.State)
	case client.JoinRequestEvent:
		fmt.Printf("* %s asks to join (/approve %s)\n", ev.User.Name, ev.User.ID)
	case client.RoomClosedEvent:
		fmt.Println("* room closed")
	case client.ErrorEvent:
		fmt.Println("!", ev.Err)
	}
}

func printGroup(g client.MessageGroup) {
	if len(g.Messages) > 0 && g.Messages[0].Kind == domain.MessageSystem {
		fmt.Printf("* %s\n", g.Messages[0].Body)
		return
	}
	fmt.Printf("<%s>\n", g.AuthorName)
	for _, msg := range g.Messages {
		fmt.Printf("  %s\n", msg.Body)
	}
}

func displayName(eng *client.Engine, userID uuid.UUID) string {
	for _, p := range eng.Roster() {
		if p.UserID == userID {
			return p.DisplayName
		}
	}
	return userID.String()[:8]
}

func participantFlags(p domain.ParticipantInfo) string {
	flags := make([]string, 0, 4)
	flags = append(flags, string(p.Role))
	if !p.VideoEnabled {
		flags = append(flags, "video off")
	}
	if !p.AudioEnabled {
		flags = append(flags, "muted")
	}
	if p.ScreenSharing {
		flags = append(flags, "sharing")
	}
	if p.Status == domain.ParticipantStatusDisconnected {
		flags = append(flags, "reconnecting")
	}
	return "(" + strings.Join(flags, ", ") + ")"
}
