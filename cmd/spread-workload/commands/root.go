// Package commands defines the CLI command structure and flag bindings.
package commands

import (
	"context"
	goflag "flag"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/2170chm/spread-workload/internal/controller/store"
)

const envPrefix = "SPREAD_WORKLOAD_"

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

// newClient builds the client used to talk to the cluster. Replaced in tests.
var newClient = func() (client.WithWatch, error) {
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, err
	}
	return client.NewWithWatch(cfg, client.Options{Scheme: scheme})
}

// sourceOptions locate the desired-state document.
type sourceOptions struct {
	configPath string
	s3         store.S3Options
}

func (o *sourceOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", envString("CONFIG", "workloads.yaml"),
		"Path or s3://bucket/key of the desired-state document")
	fs.StringVar(&o.s3.Endpoint, "s3-endpoint", envString("S3_ENDPOINT", ""),
		"Custom endpoint of an S3-compatible object store")
	fs.StringVar(&o.s3.Region, "s3-region", envString("S3_REGION", ""),
		"Region of the S3 bucket (default: from the AWS configuration)")
	fs.StringVar(&o.s3.AccessKey, "s3-access-key", envString("S3_ACCESS_KEY", ""),
		"Access key of the S3 bucket (default: from the AWS credential chain)")
	fs.StringVar(&o.s3.SecretKey, "s3-secret-key", envString("S3_SECRET_KEY", ""),
		"Secret key of the S3 bucket")
	fs.BoolVar(&o.s3.UsePathStyle, "s3-path-style", envBool("S3_PATH_STYLE", false),
		"Use path-style addressing for S3 requests")
}

func (o *sourceOptions) load(ctx context.Context) (store.Interface, error) {
	return store.Load(ctx, o.configPath, o.s3)
}

// Root returns the root command for the spread-workload CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spread-workload",
		Short:         "Keep topology-spread Deployments applied to a cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			ctrl.SetLogger(klog.NewKlogr())
		},
	}

	// klog and controller-runtime (--kubeconfig) register on the go flag set.
	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)
	if f := goflag.CommandLine.Lookup("kubeconfig"); f != nil {
		cmd.PersistentFlags().AddGoFlag(f)
	}

	cmd.AddCommand(Run())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Delete())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Version())

	return cmd
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
