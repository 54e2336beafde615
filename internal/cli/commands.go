// Package cli implements the interactive command-line interface for GameeFlow.
// It provides session control, score submission and leaderboard display for
// operators running the client in a terminal.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/gameeflow-project/gameeflow/internal/client"
	"github.com/gameeflow-project/gameeflow/internal/config"
	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/scheduler"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	session   *transport.Session
	client    *client.Client
	submitter *client.Submitter
	sched     *scheduler.Scheduler
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, session *transport.Session,
	cl *client.Client, submitter *client.Submitter, sched *scheduler.Scheduler) *CLI {
	return &CLI{
		cfg:       cfg,
		eventBus:  eventBus,
		session:   session,
		client:    cl,
		submitter: submitter,
		sched:     sched,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nGameeFlow CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	reader := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("gameeflow> ")
		if !reader.Scan() {
			if err := reader.Err(); err != nil && err != io.EOF {
				continue
			}
			return
		}

		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "connect":
		return c.cmdConnect(ctx)
	case "disconnect":
		return c.cmdDisconnect()
	case "login":
		return c.cmdLogin(ctx)
	case "profile", "balance":
		c.printProfile()
	case "boards", "leaderboards":
		c.printLeaderboards(args)
	case "refresh":
		return c.client.RefreshLeaderboards(ctx)
	case "start":
		return c.client.StartGame(ctx)
	case "submit":
		return c.cmdSubmit(ctx)
	case "endless":
		return c.cmdEndless(ctx)
	case "stopendless":
		c.sched.StopEndless()
		fmt.Println("Endless submission stopped")
	case "collect":
		return c.cmdCollect(ctx)
	case "bonus":
		return c.cmdBonus(ctx, args)
	case "payout":
		return c.cmdPayout(ctx, args)
	case "swap":
		return c.cmdSwap(ctx, args)
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down GameeFlow...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    GameeFlow CLI Commands                    ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Show session and automation state        ║")
	fmt.Println("║  connect            Open the backend websocket session       ║")
	fmt.Println("║  disconnect         Close the session                        ║")
	fmt.Println("║  login              Authenticate with configured credentials ║")
	fmt.Println("║  profile            Show player balances                     ║")
	fmt.Println("║  boards [id]        Show cached leaderboards                 ║")
	fmt.Println("║  refresh            Fetch fresh leaderboard data             ║")
	fmt.Println("║  start              Start a new game round                   ║")
	fmt.Println("║  submit             Submit the next score in the round       ║")
	fmt.Println("║  endless            Start the endless submission loop        ║")
	fmt.Println("║  stopendless        Stop the endless submission loop         ║")
	fmt.Println("║  collect            Run the reward collection sequence       ║")
	fmt.Println("║  bonus <id>         Claim a bonus                            ║")
	fmt.Println("║  payout [amount]    Request an FTN withdrawal                ║")
	fmt.Println("║  swap <amt> <cur>   Request a currency swap                  ║")
	fmt.Println("║  setconfig <k> <v>  Update a backend configuration value     ║")
	fmt.Println("║  quit               Shutdown GameeFlow                       ║")
	fmt.Println("║  help               Show this help message                   ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays the session state in a formatted table.
func (c *CLI) printStatus() {
	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Session", "Authenticated", "Endless", "Submitted", "Round Index", "Pending"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	endless := "stopped"
	if c.sched.EndlessRunning() {
		endless = fmt.Sprintf("running (%d)", c.sched.EndlessCount())
	}

	tw.Append([]string{
		c.session.State().String(),
		fmt.Sprintf("%v", c.client.Profile().Authenticated()),
		endless,
		fmt.Sprintf("%d", c.submitter.Total()),
		fmt.Sprintf("%d", c.submitter.RoundIndex()),
		fmt.Sprintf("%d", c.session.PendingCount()),
	})

	tw.Render()
	fmt.Println()
}

// printProfile prints the current balances.
func (c *CLI) printProfile() {
	snap := c.client.Profile().Snapshot()
	if snap.SessionToken == "" {
		fmt.Println("Not authenticated. Use 'login' first.")
		return
	}

	fmt.Printf("\n  Player ID:    %s\n", snap.PlayerID)
	fmt.Printf("  VIP Coin:     %.2f\n", snap.VIPCoin)
	fmt.Printf("  Chips:        %.2f\n", snap.Chips)
	fmt.Printf("  FTN Balance:  %.4f\n", snap.FTNBalance)
	fmt.Println()
}

// printLeaderboards displays cached leaderboard snapshots.
func (c *CLI) printLeaderboards(args []string) {
	boards := c.client.Leaderboards()
	if len(boards) == 0 {
		fmt.Println("No leaderboard data cached. Use 'refresh' first.")
		return
	}

	only := -1
	if len(args) > 0 {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("Invalid leaderboard id")
			return
		}
		only = id
	}

	for _, b := range boards {
		if only >= 0 && b.ID != only {
			continue
		}

		name := b.Name
		if name == "" {
			name = fmt.Sprintf("board %d", b.ID)
		}
		fmt.Printf("\n  %s (id %d, updated %s)\n", name, b.ID, b.UpdatedAt.Format("15:04:05"))

		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"#", "Player", "Points", "XP", "Chips"})
		tw.SetBorder(true)
		tw.SetAutoWrapText(false)

		for i, p := range b.Players {
			who := p.NickName
			if who == "" {
				who = p.ID
			}
			tw.Append([]string{
				fmt.Sprintf("%d", i+1),
				who,
				fmt.Sprintf("%.0f", p.Points),
				fmt.Sprintf("%.0f", p.XP),
				fmt.Sprintf("%.0f", p.Chips),
			})
		}

		tw.Render()
	}
	fmt.Println()
}

func (c *CLI) cmdConnect(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		return err
	}
	fmt.Println("Session connected")
	return nil
}

func (c *CLI) cmdDisconnect() error {
	c.sched.StopEndless()
	c.session.Disconnect()
	fmt.Println("Session disconnected")
	return nil
}

func (c *CLI) cmdLogin(ctx context.Context) error {
	backend := c.cfg.GetBackendData()
	snap, err := c.client.Authenticate(ctx, client.Credentials{
		Login:            backend.Login,
		Password:         backend.Password,
		FastexUserID:     backend.FastexUserID,
		FTNAddress:       backend.FTNAddress,
		WithdrawalAmount: backend.WithdrawalAmount,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s (VIP %.2f, FTN %.4f)\n", snap.PlayerID, snap.VIPCoin, snap.FTNBalance)
	return nil
}

func (c *CLI) cmdSubmit(ctx context.Context) error {
	if _, err := c.submitter.SubmitNext(ctx); err != nil {
		return err
	}
	fmt.Printf("Score submitted (round index now %d, total %d)\n",
		c.submitter.RoundIndex(), c.submitter.Total())
	return nil
}

func (c *CLI) cmdEndless(ctx context.Context) error {
	if err := c.sched.StartEndless(ctx); err != nil {
		return err
	}
	fmt.Println("Endless submission started")
	return nil
}

func (c *CLI) cmdCollect(ctx context.Context) error {
	fmt.Println("Running reward collection sequence...")
	if err := c.submitter.CollectReward(ctx); err != nil {
		return err
	}
	fmt.Println("Reward collection complete")
	return nil
}

func (c *CLI) cmdBonus(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: bonus <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid bonus id: %s", args[0])
	}

	if err := c.client.CollectBonus(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Bonus %d claimed\n", id)
	return nil
}

func (c *CLI) cmdPayout(ctx context.Context, args []string) error {
	backend := c.cfg.GetBackendData()

	amount := backend.WithdrawalAmount
	if len(args) > 0 {
		amount = args[0]
	}

	if err := c.client.PayoutFTN(ctx, amount, backend.FastexUserID, backend.FTNAddress); err != nil {
		return err
	}
	fmt.Printf("Payout of %s FTN requested\n", amount)
	return nil
}

func (c *CLI) cmdSwap(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: swap <amount> <currency>")
	}

	if err := c.client.SwapTransactions(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Swap of %s %s requested\n", args[0], args[1])
	return nil
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateBackendField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}
