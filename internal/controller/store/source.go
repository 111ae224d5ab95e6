package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
)

const s3Scheme = "s3"

// S3Options configures access to desired-state documents kept in an
// S3-compatible object store. Empty credentials fall back to the default
// AWS credential chain.
type S3Options struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// objectGetter is the part of the S3 API used to fetch documents.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Load reads the desired-state document at location and builds a store
// from it. location is either a local path or an s3://bucket/key URL.
func Load(ctx context.Context, location string, opts S3Options) (Interface, error) {
	data, err := Read(ctx, location, opts)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", location, err)
	}
	s, err := NewStore(doc)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", location, err)
	}
	klog.InfoS("Loaded desired state", "location", location, "workloads", len(doc.Workloads))
	return s, nil
}

// Read returns the raw bytes of the document at location.
func Read(ctx context.Context, location string, opts S3Options) ([]byte, error) {
	if !strings.HasPrefix(location, s3Scheme+"://") {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, workloaderrors.WrapConfigInvalid(fmt.Errorf("read desired state: %w", err))
		}
		return data, nil
	}

	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return readObject(ctx, client, bucket, key)
}

// ParseDocument decodes a YAML or JSON desired-state document. Unknown
// fields are rejected.
func ParseDocument(data []byte) (*workloadv1alpha1.WorkloadDocument, error) {
	doc := &workloadv1alpha1.WorkloadDocument{}
	if err := yaml.UnmarshalStrict(data, doc); err != nil {
		return nil, workloaderrors.WrapConfigInvalid(err)
	}
	return doc, nil
}

func parseS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", workloaderrors.WrapConfigInvalid(err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != s3Scheme || u.Host == "" || key == "" {
		return "", "", workloaderrors.WrapConfigInvalid(
			fmt.Errorf("invalid S3 location %q, expected s3://bucket/key", location))
	}
	return u.Host, key, nil
}

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" || opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, workloaderrors.WrapConfigInvalid(fmt.Errorf("failed to load AWS config: %w", err))
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

func readObject(ctx context.Context, client objectGetter, bucket, key string) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(fmt.Errorf("get s3://%s/%s: %w", bucket, key, err))
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, workloaderrors.WrapTransport(fmt.Errorf("read s3://%s/%s: %w", bucket, key, err))
	}
	return data, nil
}

func classifyS3Error(err error) error {
	var noSuchKey *s3types.NoSuchKey
	var noSuchBucket *s3types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return workloaderrors.WrapConfigInvalid(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return workloaderrors.WrapConfigInvalid(err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return workloaderrors.WrapFatal(err)
		}
	}
	return workloaderrors.WrapTransport(err)
}
