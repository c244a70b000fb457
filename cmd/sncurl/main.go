// sncurl prints a curl command carrying SNWS2 authorization headers for a
// SolarNetwork API request.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/executor/snws2"
	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

func main() {
	env := config.CredentialsFromEnv()
	if env.Host == "" {
		env.Host = solarnet.DefaultHost
	}

	host := flag.String("host", env.Host, "API host")
	token := flag.String("token", env.Token, "Security token")
	secret := flag.String("secret", env.Secret, "Security token secret")
	scheme := flag.String("scheme", "https", "URL scheme")
	method := flag.String("method", "GET", "HTTP method")
	path := flag.String("path", "", "Request path, e.g. /solarquery/api/v1/sec/nodes")
	query := flag.String("query", "", "Raw query string, e.g. nodeId=123&sourceIds=a,b")
	accept := flag.String("accept", solarnet.DefaultAccept, "Accept header")
	data := flag.String("data", "", "JSON request body")
	flag.Parse()

	if *token == "" || *secret == "" || *path == "" {
		fmt.Fprintln(os.Stderr, "Usage: sncurl -token TOKEN -secret SECRET -path PATH [-method GET] [-query 'a=1&b=2'] [-data '{...}']")
		fmt.Fprintln(os.Stderr, "\nEnvironment variables: SOLARNETWORK_HOST, SOLARNETWORK_TOKEN, SOLARNETWORK_SECRET")
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintln(os.Stderr, "  sncurl -path /solarquery/api/v1/sec/nodes")
		fmt.Fprintln(os.Stderr, "  sncurl -path /solarquery/api/v1/sec/datum/list -query 'nodeId=123&sourceIds=/meter/1'")
		fmt.Fprintln(os.Stderr, "  sncurl -method POST -path /solaruser/api/v1/sec/instr/add -data '{\"nodeId\":123}'")
		os.Exit(1)
	}

	signer, err := snws2.NewSigner(snws2.Credentials{Token: *token, Secret: *secret})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating signer: %v\n", err)
		os.Exit(1)
	}

	cmd, err := buildCommand(signer, request{
		Scheme: *scheme,
		Host:   *host,
		Method: *method,
		Path:   *path,
		Query:  *query,
		Accept: *accept,
		Data:   *data,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing request: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(cmd)
}
