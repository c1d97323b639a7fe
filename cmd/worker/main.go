package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"srtfsched/worker"

	"github.com/jessevdk/go-flags"
)

var cmdflags struct {
	ProcNum int `short:"p" long:"proc" description:"The job id this worker stands in for" required:"true"`
}

func main() {
	if _, err := flags.Parse(&cmdflags); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGTSTP, syscall.SIGCONT, syscall.SIGTERM)

	err := worker.Run(context.Background(), worker.Config{
		ProcNum: cmdflags.ProcNum,
		Out:     os.Stdout,
		Signals: sigs,
	})
	if err != nil {
		log.Fatalf("worker p=%d failed: %v", cmdflags.ProcNum, err)
	}
}
