package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/es"
)

func (c maincmd) search(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("need exactly one tag")
	}
	keys, err := c.svc.Search(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printKeys(keys)
	return nil
}

func (c maincmd) thumbs(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	keys, err := c.svc.Thumbnails(ctx)
	if err != nil {
		return err
	}
	printKeys(keys)
	return nil
}

func (c maincmd) parent(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	key, err := oneKey(fs.Args())
	if err != nil {
		return err
	}
	p, err := c.svc.Parent(ctx, key)
	if err != nil {
		return err
	}
	fmt.Println(p)
	return nil
}

func printKeys(keys []es.Key) {
	for _, k := range keys {
		fmt.Println(k)
	}
}
