package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/searchreplicator/infra"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)

	props := infra.ConfigFromContext(app.Node())
	if err := props.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "replicator-cdk: FAIL: %v\n", err)
		os.Exit(1)
	}
	props.StackProps = awscdk.StackProps{Env: env()}
	props.Environment = secretEnvironment()

	infra.NewReplicatorStack(app, "SearchReplicator", props)

	app.Synth(nil)
}

func env() *awscdk.Environment {
	account := os.Getenv("CDK_DEFAULT_ACCOUNT")
	region := os.Getenv("CDK_DEFAULT_REGION")
	if account == "" && region == "" {
		return nil
	}
	return &awscdk.Environment{
		Account: jsii.String(account),
		Region:  jsii.String(region),
	}
}

// Credentials are taken from the deploying shell, never from cdk.json.
func secretEnvironment() map[string]string {
	out := map[string]string{}
	for _, key := range []string{"ES_USERNAME", "ES_PASSWORD", "ES_API_KEY", "ES_AUTHORIZATION"} {
		if v := os.Getenv(key); v != "" {
			out[key] = v
		}
	}
	return out
}
