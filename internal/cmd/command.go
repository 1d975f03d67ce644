package cmd

import (
	"context"
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/unalz/internal/config"
)

type Unalz struct {
	Profile string  `long:"profile" description:"AWS profile used to read s3:// archives; overrides the .unalz settings"`
	Extract Extract `command:"extract" alias:"x" description:"extract an archive"`
	List    List    `command:"list" alias:"l" description:"list the contents of archives"`
	Test    Test    `command:"test" alias:"t" description:"decompress archives and verify their checksums without writing anything"`
}

func NewParser() (*flags.Parser, error) {
	opts := &Unalz{}

	p := flags.NewNamedParser("unalz", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	p.CommandHandler = func(command flags.Commander, args []string) error {
		if _, err := config.LoadProfile(context.Background(), opts.Profile); err != nil {
			return fmt.Errorf("load config error: %w", err)
		}

		return command.Execute(args)
	}

	return p, nil
}
