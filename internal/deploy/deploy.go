// Package deploy resolves the pinned version token for fixed-mode serving.
// A bake step publishes the token to SSM Parameter Store; servers fetch it
// at startup so every instance in a fleet hands out the same token without
// rendering anything.
package deploy

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/webassets/internal/cryptoutil"
	"github.com/keithlinneman/webassets/internal/log"
	"github.com/keithlinneman/webassets/internal/xerrors"
)

type TokenSourceOptions struct {
	Logger log.Logger

	// SSMParam is the parameter holding the pinned token
	SSMParam string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config
}

// TokenSource reads and writes the pinned token parameter.
type TokenSource struct {
	opts      TokenSourceOptions
	ssmClient *ssm.Client
	logger    log.Logger
}

func NewTokenSource(ctx context.Context, opts TokenSourceOptions) (*TokenSource, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}

	return &TokenSource{
		opts:      opts,
		ssmClient: ssm.NewFromConfig(awsCfg),
		logger:    opts.Logger,
	}, nil
}

// FetchPinnedToken gets the current pinned version token from SSM.
func (t *TokenSource) FetchPinnedToken(ctx context.Context) (string, error) {
	out, err := t.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(t.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", t.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", t.opts.SSMParam)
	}
	token := strings.TrimSpace(*out.Parameter.Value)
	if !cryptoutil.IsHex(token) {
		return "", xerrors.Newf("SSM parameter %s is not a valid token", t.opts.SSMParam)
	}
	t.logger.Info(ctx, "fetched pinned version token",
		"param", t.opts.SSMParam,
		"token", token,
	)
	return token, nil
}

// PublishPinnedToken overwrites the parameter with a freshly baked token.
func (t *TokenSource) PublishPinnedToken(ctx context.Context, token string) error {
	if !cryptoutil.IsHex(token) {
		return xerrors.Newf("refusing to publish non-hex token %q", token)
	}
	_, err := t.ssmClient.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(t.opts.SSMParam),
		Value:     aws.String(token),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put SSM parameter %s", t.opts.SSMParam)
	}
	t.logger.Info(ctx, "published pinned version token",
		"param", t.opts.SSMParam,
		"token", token,
	)
	return nil
}
