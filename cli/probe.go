package cli

// This file contains the probe command: a single signed round-trip
// against the affiliate API to validate credentials and connectivity.

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/testpilot/testpilot/apiclient"
)

// probeQuery is intentionally tiny: one offer is enough to prove the
// signature and credentials work.
const probeQuery = `{shopeeOfferV2(limit: 1){nodes{offerName commissionRate}}}`

func (a *App) probe(ctx *cli.Context) error {
	client, err := apiclient.NewFromEnv()
	if err != nil {
		return err
	}

	a.logger.Info().Msg("Probing affiliate API")

	data, err := client.Request(ctx.Context, probeQuery, nil)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("credentials rejected: %w", apiErr)
		}
		return err
	}

	fmt.Println("Credentials OK")
	fmt.Printf("Response: %s\n", data)
	return nil
}
