package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stockkanban/client-go/dashboard"
	"github.com/stockkanban/client-go/internal/config"
	"github.com/stockkanban/client-go/pkg/api"
)

const usage = `usage: stockkanban <command> [args]

commands:
  login <email>                      authenticate and persist the session
  register <username> <email>        create an account
  logout                             end the session everywhere
  status                             show session state
  watchlist list                     list watchlists
  watchlist create <name>            create a watchlist
  watchlist add <id> <stockCode>     add a stock to a watchlist
  watchlist remove <stockCode>       remove a stock
  cards [status]                     list board cards, optionally by column
  move <cardId> <status>             move a card between columns
  stats                              per-column card counts
  chart <stockCode> [days]           recent candles for a stock
  events                             security event log
  watch                              keep the session alive until interrupted
`

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal("load configuration: %v", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	client, err := dashboard.New(dashboard.Config{
		BaseURL:          cfg.APIBaseURL,
		KeystorePath:     cfg.KeystorePath,
		UserAgent:        cfg.UserAgent,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutWindow:    cfg.LockoutWindow,
		RefreshLead:      cfg.RefreshLead,
		WarningLead:      cfg.WarningLead,
		InactivityLimit:  cfg.InactivityLimit,
		ResumeWindow:     cfg.ResumeWindow,
		Logger:           logger,
	})
	if err != nil {
		fatal("initialize client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	args := os.Args[2:]

	switch os.Args[1] {
	case "login":
		cmdLogin(ctx, client, args)
	case "register":
		cmdRegister(ctx, client, args)
	case "logout":
		client.Logout(ctx)
		fmt.Println("logged out")
	case "status":
		cmdStatus(client)
	case "watchlist":
		cmdWatchlist(ctx, client, args)
	case "cards":
		cmdCards(ctx, client, args)
	case "move":
		cmdMove(ctx, client, args)
	case "stats":
		cmdStats(ctx, client)
	case "chart":
		cmdChart(ctx, client, args)
	case "events":
		cmdEvents(client)
	case "watch":
		cmdWatch(ctx, client)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func promptSecret(label string) string {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fatal("read input: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func cmdLogin(ctx context.Context, client *dashboard.Client, args []string) {
	if len(args) != 1 {
		fatal("usage: stockkanban login <email>")
	}
	password := promptSecret("password")

	snap, err := client.Login(ctx, args[0], password)
	if err != nil {
		fatal("login failed: %v", err)
	}
	fmt.Printf("logged in as %s (%s)\n", snap.Identity.Username, snap.Identity.Role)
}

func cmdRegister(ctx context.Context, client *dashboard.Client, args []string) {
	if len(args) != 2 {
		fatal("usage: stockkanban register <username> <email>")
	}
	password := promptSecret("password")
	confirm := promptSecret("confirm password")

	snap, err := client.Register(ctx, args[0], args[1], password, confirm)
	if err != nil {
		fatal("registration failed: %v", err)
	}
	fmt.Printf("registered and logged in as %s\n", snap.Identity.Username)
}

func cmdStatus(client *dashboard.Client) {
	snap := client.Session()
	if !snap.Authenticated {
		fmt.Println("not logged in")
		return
	}
	fmt.Printf("logged in as %s <%s> role=%s\n",
		snap.Identity.Username, snap.Identity.Email, snap.Identity.Role)
}

func cmdWatchlist(ctx context.Context, client *dashboard.Client, args []string) {
	if len(args) == 0 {
		fatal("usage: stockkanban watchlist <list|create|add|remove> ...")
	}

	switch args[0] {
	case "list":
		lists, err := client.API().Watchlists(ctx)
		if err != nil {
			fatal("list watchlists: %v", err)
		}
		if len(lists) == 0 {
			fmt.Println("no watchlists")
			return
		}
		for _, wl := range lists {
			fmt.Printf("%d\t%s\t%d/%d\t%s\n",
				wl.ID, wl.Name, wl.CurrentSize, wl.MaxSize, strings.Join(wl.StockCodes, ","))
		}
	case "create":
		if len(args) != 2 {
			fatal("usage: stockkanban watchlist create <name>")
		}
		wl, err := client.API().CreateWatchlist(ctx, args[1], 0)
		if err != nil {
			fatal("create watchlist: %v", err)
		}
		fmt.Printf("created watchlist %d (%s)\n", wl.ID, wl.Name)
	case "add":
		if len(args) != 3 {
			fatal("usage: stockkanban watchlist add <id> <stockCode>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fatal("invalid watchlist id %q", args[1])
		}
		if err := client.API().AddStock(ctx, id, args[2], ""); err != nil {
			fatal("add stock: %v", err)
		}
		fmt.Printf("added %s\n", args[2])
	case "remove":
		if len(args) != 2 {
			fatal("usage: stockkanban watchlist remove <stockCode>")
		}
		if err := client.API().RemoveStock(ctx, args[1]); err != nil {
			fatal("remove stock: %v", err)
		}
		fmt.Printf("removed %s\n", args[1])
	default:
		fatal("unknown watchlist command %q", args[0])
	}
}

func cmdCards(ctx context.Context, client *dashboard.Client, args []string) {
	params := api.SearchParams{}
	if len(args) == 1 {
		params.Status = api.CardStatus(strings.ToUpper(args[0]))
	}

	page, err := client.API().Cards(ctx, params)
	if err != nil {
		fatal("list cards: %v", err)
	}
	if len(page.Cards) == 0 {
		fmt.Println("no cards")
		return
	}
	for _, c := range page.Cards {
		fmt.Printf("%d\t%s\t%s\t%s\t%.2f (%+.2f%%)\n",
			c.ID, c.StockCode, c.StockName, c.Status, c.CurrentPrice, c.ChangePercent)
	}
	if page.Pagination.HasNext {
		fmt.Printf("... %d more\n", page.Pagination.TotalElements-int64(len(page.Cards)))
	}
}

func cmdMove(ctx context.Context, client *dashboard.Client, args []string) {
	if len(args) != 2 {
		fatal("usage: stockkanban move <cardId> <status>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fatal("invalid card id %q", args[0])
	}

	card, err := client.API().UpdateCard(ctx, id, api.CardUpdate{
		Status: api.CardStatus(strings.ToUpper(args[1])),
	})
	if err != nil {
		fatal("move card: %v", err)
	}
	fmt.Printf("%s is now %s\n", card.StockCode, card.Status)
}

func cmdStats(ctx context.Context, client *dashboard.Client) {
	stats, err := client.API().Stats(ctx)
	if err != nil {
		fatal("stats: %v", err)
	}
	fmt.Printf("total=%d watch=%d readyToBuy=%d hold=%d sell=%d alerts=%d\n",
		stats.TotalCards, stats.WatchCount, stats.ReadyToBuyCount,
		stats.HoldCount, stats.SellCount, stats.AlertsCount)
}

func cmdChart(ctx context.Context, client *dashboard.Client, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fatal("usage: stockkanban chart <stockCode> [days]")
	}
	days := 0
	if len(args) == 2 {
		var err error
		days, err = strconv.Atoi(args[1])
		if err != nil {
			fatal("invalid days %q", args[1])
		}
	}

	data, err := client.API().ChartData(ctx, args[0], days)
	if err != nil {
		fatal("chart data: %v", err)
	}
	for _, c := range data.Data {
		fmt.Printf("%s\to=%.2f h=%.2f l=%.2f c=%.2f v=%d\n",
			c.Date, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
}

func cmdEvents(client *dashboard.Client) {
	events := client.Events()
	if len(events) == 0 {
		fmt.Println("no events")
		return
	}
	for _, e := range events {
		fmt.Printf("%s\t%s\t%v\n", e.Timestamp.Format(time.RFC3339), e.Type, e.Details)
	}
}

// cmdWatch keeps the session alive: the scheduler refreshes ahead of expiry
// and any line on stdin counts as user activity.
func cmdWatch(ctx context.Context, client *dashboard.Client) {
	if !client.Session().Authenticated {
		fatal("not logged in")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	client.Start(ctx)
	client.Resume()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			client.Touch()
		}
	}()

	fmt.Println("watching session; press Ctrl-C to stop")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			fmt.Println("stopped")
			return
		case <-ticker.C:
			snap := client.Session()
			if !snap.Authenticated {
				fmt.Println("session ended")
				return
			}
		}
	}
}
