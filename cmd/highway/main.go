package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/highwayswap/highway"
	"github.com/highwayswap/highway/swapd"
	"github.com/urfave/cli"
)

// defaultTimeout bounds every call to the daemon but waiting swaps.
const defaultTimeout = 30 * time.Second

func printRespJSON(resp interface{}) {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}

	fmt.Println(string(b))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[highway] %v\n", err)
	os.Exit(1)
}

func main() {
	highway.AgentName = "highway"

	app := cli.NewApp()

	app.Version = highway.Version()
	app.Name = "highway"
	app.Usage = "control plane for your highwayd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "httpserver",
			Value: "localhost:8089",
			Usage: "highwayd daemon address host:port",
		},
	}
	app.Commands = []cli.Command{
		infoCommand, faucetCommand, balanceCommand, quoteCommand,
		swapCommand, listSwapsCommand, swapInfoCommand,
		payloadCommand,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

// daemonClient calls the HTTP API of highwayd.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

func getClient(ctx *cli.Context) *daemonClient {
	server := ctx.GlobalString("httpserver")
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}

	return &daemonClient{
		baseURL: strings.TrimSuffix(server, "/"),
		http:    &http.Client{},
	}
}

// call sends req as JSON body, if it is set, and decodes the response into
// resp, if it is set.
func (c *daemonClient) call(ctx context.Context, method, path string, req,
	resp interface{}) error {

	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, method, c.baseURL+path, body,
	)
	if err != nil {
		return err
	}
	httpReq.Header.Set("User-Agent", highway.UserAgent("cli"))
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusBadRequest {
		var errResp swapd.ErrorResponse
		err := json.NewDecoder(httpResp.Body).Decode(&errResp)
		if err != nil || errResp.Error == "" {
			return fmt.Errorf("request failed: %v",
				httpResp.Status)
		}

		return errors.New(errResp.Error)
	}

	if resp == nil || httpResp.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(httpResp.Body).Decode(resp)
}

func (c *daemonClient) get(ctx context.Context, path string,
	resp interface{}) error {

	return c.call(ctx, http.MethodGet, path, nil, resp)
}

func (c *daemonClient) post(ctx context.Context, path string, req,
	resp interface{}) error {

	return c.call(ctx, http.MethodPost, path, req, resp)
}
