// Package main 启动 engagement 服务：HTTP 入口与互动变更消费 Runner 同进程运行。
package main

import (
	"context"
	"flag"
	"os"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/observability"
	"github.com/bionicotaku/lingo-services-engagement/internal/tasks/engagement"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name string
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "", "config path or directory, eg: -conf configs/config.yaml")
}

func newApp(logger log.Logger, meta configloader.ServiceMetadata, _ *observability.MeterProvider, hs *http.Server, runner *engagement.Runner) *kratos.App {
	name := meta.Name
	if Name != "" {
		name = Name
	}
	version := meta.Version
	if Version != "" {
		version = Version
	}
	instanceID := meta.InstanceID
	if instanceID == "" {
		instanceID = id
	}
	return kratos.New(
		kratos.ID(instanceID),
		kratos.Name(name),
		kratos.Version(version),
		kratos.Metadata(map[string]string{"environment": meta.Environment}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			runner,
		),
	)
}

func main() {
	flag.Parse()

	app, cleanup, err := wireApp(context.Background(), configloader.Params{ConfPath: flagconf})
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
