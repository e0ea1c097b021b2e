package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/upsidelab/physionet-build/dao/query"
	"github.com/upsidelab/physionet-build/internal"
	"github.com/upsidelab/physionet-build/internal/handler"
	"github.com/upsidelab/physionet-build/pkg/alert"
	"github.com/upsidelab/physionet-build/pkg/config"
	envdb "github.com/upsidelab/physionet-build/pkg/db/environment"
	projectdb "github.com/upsidelab/physionet-build/pkg/db/project"
	userdb "github.com/upsidelab/physionet-build/pkg/db/user"
	"github.com/upsidelab/physionet-build/pkg/envclient"
	"github.com/upsidelab/physionet-build/pkg/envctl"
	"github.com/upsidelab/physionet-build/pkg/expiry"
	"github.com/upsidelab/physionet-build/pkg/taskqueue"
)

// @title Research Environment API
// @version 1.0
// @description Backend for provisioning and managing cloud research workbenches.
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	// set global timezone
	time.Local = time.UTC

	// variable changes in local development
	if gin.Mode() == gin.DebugMode {
		if err := godotenv.Load(".debug.env"); err != nil {
			klog.Warningf("no .debug.env loaded: %v", err)
		}
	}

	backendConfig := config.GetConfig()

	db := query.GetDB()
	if err := query.Migrate(db); err != nil {
		panic(err)
	}

	timeout := time.Duration(backendConfig.EnvironmentAPI.RequestTimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client, err := envclient.New(
		backendConfig.EnvironmentAPI.URL,
		backendConfig.EnvironmentAPI.Audience,
		backendConfig.EnvironmentAPI.ServiceAccountFile,
		timeout,
	)
	if err != nil {
		panic(err)
	}

	environmentDB := envdb.NewDBService()
	projectDB := projectdb.NewDBService()
	userDB := userdb.NewDBService()

	service := envctl.New(client, environmentDB, projectDB, envctl.JupyterParams{
		VMImage:            backendConfig.Jupyter.VMImage,
		PersistentDiskGB:   backendConfig.Jupyter.PersistentDiskGB,
		BucketNameTemplate: backendConfig.Jupyter.BucketNameTemplate,
	})

	ctx := context.Background()
	queue := taskqueue.New(db)
	reconciler := expiry.New(service, userDB, alert.GetAlertMgr(), queue,
		backendConfig.Expiry.TerminationGraceDays)
	reconciler.RegisterTasks(queue)
	poller := taskqueue.StartPoller(ctx, queue, backendConfig.TaskQueue.PollSpec)
	defer poller.Stop()

	if backendConfig.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			klog.Infof("metrics listening on %s", backendConfig.MetricsAddr)
			if err := http.ListenAndServe(backendConfig.MetricsAddr, mux); err != nil {
				klog.Errorf("metrics server: %v", err)
			}
		}()
	}

	backend := internal.Register(&handler.RegisterConfig{
		Service:     service,
		UserDB:      userDB,
		ProjDB:      projectDB,
		Transitions: reconciler,
	})

	klog.Infof("server listening on %s", backendConfig.ServerAddr)
	if err := backend.R.Run(backendConfig.ServerAddr); err != nil {
		panic(err)
	}
}
