package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/bobg/es/store/rpc"
)

func (c maincmd) serve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	addr := fs.String("addr", ":5555", "address to listen on")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	gs := grpc.NewServer()
	rpc.Register(gs, rpc.NewServer(c.s))

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", *addr)
	}
	defer lis.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	c.log.Info("Listening", "addr", lis.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		c.log.Info("Shutting down")
		gs.GracefulStop()
		return nil
	})
	return g.Wait()
}
