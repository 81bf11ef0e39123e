package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/app"
	"github.com/robertarktes/googlepaypasses/internal/config"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/jobs"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/settings"
	"github.com/robertarktes/googlepaypasses/internal/wallet"
	"github.com/urfave/cli/v2"
)

type runtime struct {
	cfg    *config.Config
	stores *app.Stores
	wallet *app.Wallet
}

func open(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	logger := observability.NewLoggerForMode(cfg.Development)

	stores, err := app.OpenStores(c.Context, cfg, logger)
	if err != nil {
		return nil, err
	}
	w, err := app.NewWallet(c.Context, cfg, stores, logger)
	if err != nil {
		stores.Close(context.Background())
		return nil, err
	}
	return &runtime{cfg: cfg, stores: stores, wallet: w}, nil
}

func (r *runtime) close() {
	r.stores.Close(context.Background())
}

func (r *runtime) client() (*wallet.Client, error) {
	if r.wallet.Client == nil {
		return nil, errors.WithHint(domain.ErrNotConfigured, "run `walletctl settings set` first")
	}
	return r.wallet.Client, nil
}

func withWallet(c *cli.Context, fn func(r *runtime, client *wallet.Client) error) error {
	r, err := open(c)
	if err != nil {
		return err
	}
	defer r.close()
	client, err := r.client()
	if err != nil {
		return err
	}
	return fn(r, client)
}

func requireArg(c *cli.Context, name string) (string, error) {
	arg := c.Args().First()
	if arg == "" {
		return "", errors.Newf("no %s specified", name)
	}
	return arg, nil
}

func listClasses(c *cli.Context) error {
	return withWallet(c, func(r *runtime, client *wallet.Client) error {
		items, err := client.List(c.Context, wallet.EventTicketClassResource, url.Values{"issuerId": {r.wallet.Installation.IssuerID}})
		if err != nil {
			return err
		}
		for _, raw := range items {
			var cls struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &cls); err != nil {
				return errors.Wrap(err, "decode class")
			}
			fmt.Fprintln(c.App.Writer, cls.ID)
		}
		return nil
	})
}

func printClass(c *cli.Context) error {
	id, err := requireArg(c, "classID")
	if err != nil {
		return err
	}
	return withWallet(c, func(_ *runtime, client *wallet.Client) error {
		return printResource(c, client, wallet.EventTicketClassResource, id)
	})
}

func listObjects(c *cli.Context) error {
	classID, err := requireArg(c, "classID")
	if err != nil {
		return err
	}
	return withWallet(c, func(_ *runtime, client *wallet.Client) error {
		items, err := client.List(c.Context, wallet.EventTicketObjectResource, url.Values{"classId": {classID}})
		if err != nil {
			return err
		}
		for _, raw := range items {
			line, err := objectLine(raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, line)
		}
		return nil
	})
}

func printObject(c *cli.Context) error {
	id, err := requireArg(c, "objectID")
	if err != nil {
		return err
	}
	return withWallet(c, func(_ *runtime, client *wallet.Client) error {
		return printResource(c, client, wallet.EventTicketObjectResource, id)
	})
}

func shredObject(c *cli.Context) error {
	id, err := requireArg(c, "objectID")
	if err != nil {
		return err
	}
	return withWallet(c, func(r *runtime, _ *wallet.Client) error {
		if err := r.wallet.Synchronizer.ShredObject(c.Context, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errors.Newf("could not retrieve object %s", id)
			}
			return errors.Wrapf(err, "shredding object %s", id)
		}
		fmt.Fprintf(c.App.Writer, "Successfully shredded object %s\n", id)
		return nil
	})
}

func printResource(c *cli.Context, client *wallet.Client, resource wallet.ResourceType, id string) error {
	raw, found, err := client.Get(c.Context, resource, id)
	if err != nil {
		return err
	}
	if !found {
		return errors.Newf("%s %s not found", resource, id)
	}
	return writeIndented(c.App.Writer, raw)
}

// objectLine renders one object of `objects list`.
func objectLine(raw json.RawMessage) (string, error) {
	var obj struct {
		ID       string `json:"id"`
		HasUsers bool   `json:"hasUsers"`
		State    string `json:"state"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", errors.Wrap(err, "decode object")
	}
	return fmt.Sprintf("%s - hasUsers: %t - state: %s", obj.ID, obj.HasUsers, obj.State), nil
}

func writeIndented(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return errors.Wrap(err, "format response")
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func showSettings(c *cli.Context) error {
	r, err := open(c)
	if err != nil {
		return err
	}
	defer r.close()

	inst := r.wallet.Installation
	fmt.Fprintf(c.App.Writer, "salt:        %s\n", inst.Salt)
	fmt.Fprintf(c.App.Writer, "issuer id:   %s\n", orUnset(inst.IssuerID))
	fmt.Fprintf(c.App.Writer, "credentials: %s\n", describeCredentials(r.wallet.Credentials))
	fmt.Fprintf(c.App.Writer, "maps key:    %s\n", mask(inst.MapsAPIKey))
	return nil
}

func setSettings(c *cli.Context) error {
	v := settings.Values{
		IssuerID:   c.String("issuer-id"),
		MapsAPIKey: c.String("maps-api-key"),
	}
	if path := c.String("credentials-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		v.Credentials = data
	}
	if v.IssuerID == "" && v.MapsAPIKey == "" && len(v.Credentials) == 0 {
		return errors.New("nothing to set")
	}

	r, err := open(c)
	if err != nil {
		return err
	}
	defer r.close()
	if err := settings.Save(c.Context, r.stores.Repo, v); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Settings saved. Restart the api and worker to pick them up.")
	return nil
}

func configureEvent(c *cli.Context) error {
	raw, err := requireArg(c, "eventID")
	if err != nil {
		return err
	}
	eventID, err := uuid.Parse(raw)
	if err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "event id %q", raw)
	}

	r, err := open(c)
	if err != nil {
		return err
	}
	defer r.close()

	ev, err := r.stores.Catalog.GetEvent(c.Context, eventID)
	if err != nil {
		return errors.Wrapf(err, "load event %s", eventID)
	}
	ws, err := applyEventFlags(c, ev.Wallet)
	if err != nil {
		return err
	}
	if err := r.stores.Catalog.UpdateWalletSettings(c.Context, eventID, ws); err != nil {
		return errors.Wrapf(err, "update event %s", eventID)
	}
	if err := jobs.NewOutboxEnqueuer(r.stores.Repo).Enqueue(c.Context, jobs.ClassRefresh(eventID), 0); err != nil {
		return errors.Wrap(err, "queue class refresh")
	}
	fmt.Fprintf(c.App.Writer, "Updated event %s\n", eventID)
	return nil
}

// applyEventFlags overlays the flags that were given on ws.
func applyEventFlags(c *cli.Context, ws domain.WalletSettings) (domain.WalletSettings, error) {
	if c.IsSet("approve") {
		ws.DataProtectionApproval = c.Bool("approve")
	}
	if c.IsSet("show-disclaimer") {
		ws.ShowDisclaimer = c.Bool("show-disclaimer")
	}
	if c.IsSet("disclaimer") {
		text := domain.I18n{}
		for _, entry := range c.StringSlice("disclaimer") {
			locale, value, ok := strings.Cut(entry, "=")
			if !ok || locale == "" {
				return ws, errors.Wrapf(domain.ErrInvalidInput, "disclaimer %q is not locale=text", entry)
			}
			text[locale] = value
		}
		ws.DisclaimerText = text
	}
	if c.IsSet("logo") {
		ws.LogoURL = c.String("logo")
	}
	if c.IsSet("hero") {
		ws.HeroURL = c.String("hero")
	}
	if c.IsSet("latitude") != c.IsSet("longitude") {
		return ws, errors.Wrap(domain.ErrInvalidInput, "latitude and longitude go together")
	}
	if c.IsSet("latitude") {
		lat, lon := c.Float64("latitude"), c.Float64("longitude")
		ws.Latitude, ws.Longitude = &lat, &lon
	}
	return ws, nil
}

func history(c *cli.Context) error {
	subject, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	r, err := open(c)
	if err != nil {
		return err
	}
	defer r.close()

	entries, err := r.stores.Audit.History(c.Context, subject, c.Int64("limit"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s  %-16s %v\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Data)
	}
	return nil
}

func describeCredentials(creds *wallet.Credentials) string {
	if creds == nil {
		return "(unset)"
	}
	return creds.ClientEmail
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func mask(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
