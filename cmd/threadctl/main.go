package main

import (
	"fmt"
	"time"

	"snapfeed/internal/domain/discussion/payout"
	"snapfeed/internal/domain/discussion/repository"
	"snapfeed/internal/domain/discussion/service"
	"snapfeed/pkg/httpclient"
	"snapfeed/pkg/utils"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := cli.App{
		Name:  "threadctl",
		Usage: "inspect Hive discussion threads from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "Hive JSON-RPC endpoint",
				Value:   "https://api.hive.blog",
				EnvVars: []string{"HIVE_ENDPOINT"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-request timeout",
				Value: 20 * time.Second,
			},
		},
	}
	target := []cli.Flag{
		&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Required: true},
		&cli.StringFlag{Name: "permlink", Aliases: []string{"p"}, Required: true},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "replies",
			Usage: "print the reply tree under a post",
			Flags: append(target, &cli.IntFlag{
				Name:  "depth",
				Usage: "deepest reply level to expand",
				Value: 3,
			}),
			Action: runReplies,
		},
		{
			Name:  "token",
			Usage: "mint a viewer JWT for a Hive account",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
				&cli.StringFlag{Name: "secret", EnvVars: []string{"JWT_SECRET"}, Required: true},
				&cli.BoolFlag{Name: "admin", Usage: "grant the admin role (notification broadcast)"},
				&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
			},
			Action: runToken,
		},
		{
			Name:   "payout",
			Usage:  "print the payout breakdown of a post or reply",
			Flags:  target,
			Action: runPayout,
		},
	}
	app.RunAndExitOnError()
}

func hiveClient(cctx *cli.Context) *repository.HiveClient {
	opts := httpclient.DefaultOptions()
	opts.Timeout = cctx.Duration("timeout")
	return repository.NewHiveClient(cctx.String("endpoint"), httpclient.RobustHTTPClient(zap.NewNop(), opts))
}

func runReplies(cctx *cli.Context) error {
	ctx := cctx.Context
	hive := hiveClient(cctx)

	root, err := hive.GetContent(ctx, cctx.String("author"), cctx.String("permlink"))
	if err != nil {
		return err
	}
	loader := service.NewReplyLoader(hive, zap.NewNop(), nil)
	tree := BuildTree(ctx, loader, root, cctx.Int("depth"), time.Now())
	fmt.Fprint(cctx.App.Writer, tree.String())
	return nil
}

func runPayout(cctx *cli.Context) error {
	node, err := hiveClient(cctx).GetContent(cctx.Context, cctx.String("author"), cctx.String("permlink"))
	if err != nil {
		return err
	}
	b := payout.Estimate(node, time.Now())
	w := cctx.App.Writer

	fmt.Fprintf(w, "%s\n", node.Key())
	if b.Pending {
		fmt.Fprintf(w, "  pending:  %s (settles in %d days, %s)\n", payout.FormatUSD(b.PendingPayout), b.DaysRemaining, b.SettlesAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(w, "  settled:  %s\n", b.SettlesAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "  author:   %s\n", payout.FormatUSD(b.AuthorPayout))
	fmt.Fprintf(w, "  curators: %s\n", payout.FormatUSD(b.CuratorPayout))
	fmt.Fprintf(w, "  total:    %s\n", payout.FormatUSD(payout.InitialReward(node)))
	return nil
}

func runToken(cctx *cli.Context) error {
	role := utils.RoleViewer
	if cctx.Bool("admin") {
		role = utils.RoleAdmin
	}
	token, expires, err := utils.GenerateToken(cctx.String("secret"), cctx.String("username"), role, cctx.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, token)
	fmt.Fprintf(cctx.App.ErrWriter, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
