package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/examprep/examadmin/apps/shared"
	"github.com/examprep/examadmin/core"
	emailsvc "github.com/examprep/examadmin/services/email"
	"github.com/examprep/examadmin/services/gateway"
	logsvc "github.com/examprep/examadmin/services/logger"
	"github.com/examprep/examadmin/services/notify"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	gw, err := gateway.NewClient(conf.Gateway.BaseURL, conf.Gateway.Timeout)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up gateway: %v", err), err)
	}

	var mailSvc emailsvc.Service
	notifiers := notify.Multi{notify.NewConsole(os.Stdout)}
	if conf.Debug {
		notifiers = append(notifiers, notify.NewLogging(logger))
	}
	if len(conf.AdminEmails) > 0 {
		if conf.Debug {
			mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stderr, "MAIL : ", log.LstdFlags))
		} else {
			mailSvc = emailsvc.NewSendgridService(conf, logger)
		}
		mailer, err := notify.NewMail(mailSvc, conf.AdminEmails)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up failure reports: %v", err), err)
		}
		notifiers = append(notifiers, mailer)
	}

	validate, translator := core.NewValidator()
	cli := commandLine{
		conf:       conf,
		gw:         gw,
		notifier:   notifiers,
		validate:   validate,
		translator: translator,
		openDB:     shared.OpenDB,
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	if mailSvc != nil {
		mailSvc.Wait() // failure reports
	}
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
