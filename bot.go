package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"coopshooter/netclient"
	"coopshooter/protocol"
)

func botCommand() *cli.Command {
	return &cli.Command{
		Name:  "bot",
		Usage: "connect a scripted player",
		Description: "Creates a lobby (or joins the one given with --lobby), readies up and plays " +
			"until the match ends, steering toward the nearest enemy.",
		Action: runBot,
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:  "url",
				Usage: "server WebSocket URL (overrides client.url)",
			},
			&cli.StringFlag{
				Name:  "lobby",
				Usage: "lobby id to join instead of creating one",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "player name",
				Value: "Bot",
			},
		},
	}
}

func runBot(c *cli.Context) error {
	cfg, err := loadRuntime(c)
	if err != nil {
		return err
	}
	defer SyncLogger()
	url := cfg.Client.URL
	if u := c.String("url"); u != "" {
		url = u
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent := netclient.New(netclient.Options{
		DialTimeout: cfg.Client.DialTimeout,
		IntentRate:  cfg.Client.IntentRate,
		Logger:      Log.Named("netclient"),
	})
	if err := agent.Connect(ctx, url); err != nil {
		return err
	}
	defer agent.Close()

	name := c.String("name")
	if lobbyID := c.String("lobby"); lobbyID != "" {
		err = agent.JoinLobby(name, lobbyID)
	} else {
		err = agent.CreateLobby(name, "")
	}
	if err != nil {
		return err
	}

	b := &bot{agent: agent, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	ticker := time.NewTicker(time.Second / time.Duration(cfg.Client.IntentRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-agent.Done():
			return errors.New("connection to server lost")
		case <-ticker.C:
			done, err := b.frame()
			if err != nil || done {
				return err
			}
		}
	}
}

// bot drives an Agent the way a render loop would: poll once per frame and
// react to what changed.
type bot struct {
	agent   *netclient.Agent
	rng     *rand.Rand
	last    netclient.Status
	readied bool
	wobble  float64
}

func (b *bot) frame() (bool, error) {
	st := b.agent.Status()
	b.logChanges(st)
	b.last = st

	switch {
	case st.LobbyError != "" && st.LobbyID == "":
		return true, fmt.Errorf("lobby: %s", st.LobbyError)
	case st.Victory:
		Log.Info("Victory")
		return true, nil
	case st.GameOver:
		Log.Infow("Game over", "reason", st.GameOverReason)
		return true, nil
	case st.LobbyID != "" && !b.readied:
		b.readied = true
		return false, b.agent.Ready()
	case st.GameStarted:
		b.steer(st.PlayerID, b.agent.World())
	}
	return false, nil
}

func (b *bot) logChanges(st netclient.Status) {
	if st.LobbyID != "" && st.LobbyID != b.last.LobbyID {
		Log.Infow("In lobby", "lobby", st.LobbyID, "player", st.PlayerID, "host", st.Host())
	}
	if len(st.Members) != len(b.last.Members) {
		Log.Infow("Members changed", "count", len(st.Members))
	}
	if st.LobbyError != "" && st.LobbyError != b.last.LobbyError {
		Log.Warnw("Lobby error", "error", st.LobbyError)
	}
	if st.GameStarted && !b.last.GameStarted {
		Log.Info("Game started")
	}
}

// steer chases the nearest enemy horizontally, keeps to the lower part of
// the field and always fires.
func (b *bot) steer(self protocol.PlayerID, w *netclient.World) {
	var me *protocol.PlayerState
	for _, p := range w.Players {
		if p.PlayerID == self {
			me = &p
			break
		}
	}
	if me == nil || !me.Alive {
		b.agent.SendIntent(0, 0, false)
		return
	}

	b.wobble += 0.1
	dx := math.Sin(b.wobble) * 0.3
	bestDist := math.MaxFloat64
	for _, e := range w.Enemies {
		if d := Distance(me.X, me.Y, e.X, e.Y); d < bestDist {
			bestDist = d
			dx = Clamp((e.X-me.X)/40, -1, 1)
		}
	}
	dy := 0.0
	if me.Y < FieldHeight*0.7 {
		dy = 1
	} else if b.rng.Float64() < 0.1 {
		dy = b.rng.Float64()*2 - 1
	}
	b.agent.SendIntent(dx, dy, true)
}
