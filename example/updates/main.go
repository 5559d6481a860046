package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xssnick/tgutils-go/config"
	"github.com/xssnick/tgutils-go/exchange"
	"github.com/xssnick/tgutils-go/telegram"
	"github.com/xssnick/tgutils-go/updates"
	"go.uber.org/zap"
)

var cfgPath = flag.String("config", "config.yaml", "path to yaml config")
var keyPath = flag.String("key", "server.pem", "path to server rsa public key")

func main() {
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalln("config err:", err.Error())
		return
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalln("logger err:", err.Error())
		return
	}
	defer logger.Sync()

	pem, err := os.ReadFile(*keyPath)
	if err != nil {
		log.Fatalln("read key err:", err.Error())
		return
	}
	key, err := exchange.ParsePublicKey(pem)
	if err != nil {
		log.Fatalln("parse key err:", err.Error())
		return
	}

	opts, err := telegram.OptionsFromConfig(cfg, []*rsa.PublicKey{key}, logger)
	if err != nil {
		log.Fatalln("options err:", err.Error())
		return
	}

	client, err := telegram.New(opts)
	if err != nil {
		log.Fatalln("client err:", err.Error())
		return
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := client.Updates().Subscribe(0)
	defer sub.Close()

	go func() {
		for e := range sub.Events() {
			switch v := e.(type) {
			case updates.NewMessage:
				logger.Info("new message", zap.Int32("id", v.Message.GetID()), zap.Int64("channel", v.ChannelID))
			case updates.DeleteMessages:
				logger.Info("messages deleted", zap.Int32s("ids", v.IDs), zap.Int64("channel", v.ChannelID))
			case updates.MessageReactions:
				logger.Info("reactions changed", zap.Int32("msg", v.MsgID))
			default:
				logger.Debug("update", zap.Any("event", v))
			}
		}
	}()

	if err = client.Run(ctx); err != nil {
		log.Fatalln("client stopped:", err.Error())
		return
	}

	st := client.Updates().State()
	logger.Info("stopped", zap.Int32("pts", st.Pts), zap.Int32("qts", st.Qts), zap.Int32("seq", st.Seq),
		zap.Uint64("dropped", sub.Dropped()))
}
