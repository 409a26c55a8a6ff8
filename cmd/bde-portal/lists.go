package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/bde-portal/internal/apiclient"
	"github.com/noah-isme/bde-portal/internal/models"
	"github.com/noah-isme/bde-portal/internal/service"
	"github.com/noah-isme/bde-portal/internal/validation"
	"github.com/noah-isme/bde-portal/pkg/export"
)

const defaultWatchInterval = 30 * time.Second

type record interface {
	models.Identifiable
	export.Record
}

// remoteList is the type-erased view of a ListController used by the commands.
type remoteList interface {
	Title() string
	Headers() []string
	Fetch(ctx context.Context, params models.ListParams) error
	UpdateRow(ctx context.Context, id string, patch map[string]interface{}) (map[string]string, error)
	PinRow(ctx context.Context, id string, pinned bool) (map[string]string, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) error
	Dataset() export.Dataset
	Items() interface{}
	Position() (page, pages, total int)
	AutoRefresh(ctx context.Context, interval time.Duration)
	StopAutoRefresh()
}

type boundList[T record] struct {
	*service.ListController[T]
	title   string
	headers []string
}

func bind[T record](a *app, api service.ListAPI[T], title string, headers []string) *boundList[T] {
	ctrl := service.NewListController[T](api, service.ListConfig{
		PageSize: a.cfg.List.PageSize,
		Metrics:  a.metrics,
		Logger:   a.logger.Named("list"),
	})
	return &boundList[T]{ListController: ctrl, title: title, headers: headers}
}

func (b *boundList[T]) Title() string     { return b.title }
func (b *boundList[T]) Headers() []string { return b.headers }

func (b *boundList[T]) UpdateRow(ctx context.Context, id string, patch map[string]interface{}) (map[string]string, error) {
	item, err := b.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return (*item).ExportRow(), nil
}

func (b *boundList[T]) PinRow(ctx context.Context, id string, pinned bool) (map[string]string, error) {
	item, err := b.Pin(ctx, id, pinned)
	if err != nil {
		return nil, err
	}
	return (*item).ExportRow(), nil
}

func (b *boundList[T]) Dataset() export.Dataset {
	return service.PageDataset(b.ListController, b.title, b.headers)
}

func (b *boundList[T]) Items() interface{} {
	return b.Snapshot()
}

func (b *boundList[T]) Position() (int, int, int) {
	snap := b.Snapshot()
	return snap.CurrentPage, snap.TotalPages(), snap.TotalCount
}

// resourceNames maps CLI names to list resources.
var resourceNames = []string{"announcements", "topics", "events"}

func openList(a *app, name string) (remoteList, error) {
	switch name {
	case "announcements":
		return bind[models.Announcement](a, apiclient.Announcements(a.client), "Announcements", models.AnnouncementExportHeaders), nil
	case "topics", "forum", "forum_topics":
		return bind[models.ForumTopic](a, apiclient.ForumTopics(a.client), "Forum topics", models.ForumTopicExportHeaders), nil
	case "events":
		return bind[models.Event](a, apiclient.Events(a.client), "Events", models.EventExportHeaders), nil
	default:
		return nil, fmt.Errorf("%w: unknown resource %q (want one of %s)", errUsage, name, strings.Join(resourceNames, ", "))
	}
}

// listFlags are shared by every command that targets one list.
type listFlags struct {
	resource string
	params   models.ListParams
}

func (lf *listFlags) register(fs *flag.FlagSet, withQuery bool) {
	fs.StringVar(&lf.resource, "resource", "announcements", "list to use: "+strings.Join(resourceNames, ", "))
	if withQuery {
		fs.IntVar(&lf.params.Page, "page", 1, "page number")
		fs.StringVar(&lf.params.Search, "search", "", "free-text search")
		fs.StringVar(&lf.params.Type, "type", "", "type filter, e.g. EVENT")
		fs.StringVar(&lf.params.Sort, "sort", "", "sort key, prefix with - for descending")
	}
}

// setFlag collects repeated -set key=value pairs.
type setFlag map[string]interface{}

func (s setFlag) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (s setFlag) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	switch value {
	case "true", "false":
		s[key], _ = strconv.ParseBool(value)
	default:
		if n, err := strconv.Atoi(value); err == nil {
			s[key] = n
		} else {
			s[key] = value
		}
	}
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "list")
	var lf listFlags
	lf.register(fs, true)
	asJSON := fs.Bool("json", false, "print the page as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	list, err := openList(a, lf.resource)
	if err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}
	if err := list.Fetch(ctx, lf.params); err != nil {
		return err
	}

	if *asJSON {
		return writeJSON(a.out, list.Items())
	}
	return printPage(a.out, list)
}

func cmdCreateAnnouncement(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "create-announcement")
	var form validation.AnnouncementForm
	fs.StringVar(&form.Title, "title", "", "title")
	fs.StringVar(&form.Content, "content", "", "body text")
	fs.StringVar(&form.Type, "type", string(models.AnnouncementGeneral), "GENERAL, EVENT or URGENT")
	fs.BoolVar(&form.IsPinned, "pinned", false, "pin on creation")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}
	if err := a.validator.Struct(form); err != nil {
		return err
	}

	list := bind[models.Announcement](a, apiclient.Announcements(a.client), "Announcements", models.AnnouncementExportHeaders)
	created, err := list.Create(ctx, form.Input())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created announcement %s\n", created.ID)
	return nil
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "update")
	var lf listFlags
	lf.register(fs, false)
	id := fs.String("id", "", "item id")
	patch := setFlag{}
	fs.Var(patch, "set", "field to change as key=value; repeatable")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" || len(patch) == 0 {
		return fmt.Errorf("%w: update needs -id and at least one -set", errUsage)
	}
	list, err := openList(a, lf.resource)
	if err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}

	row, err := list.UpdateRow(ctx, *id, patch)
	if err != nil {
		return err
	}
	return printRow(a.out, list.Headers(), row)
}

func cmdPin(pinned bool) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := newFlags(a, "pin")
		var lf listFlags
		lf.register(fs, false)
		id := fs.String("id", "", "item id")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("%w: -id is required", errUsage)
		}
		list, err := openList(a, lf.resource)
		if err != nil {
			return err
		}
		if err := a.requireSignedIn(); err != nil {
			return err
		}

		row, err := list.PinRow(ctx, *id, pinned)
		if err != nil {
			return err
		}
		return printRow(a.out, list.Headers(), row)
	}
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "delete")
	var lf listFlags
	lf.register(fs, false)
	id := fs.String("id", "", "item id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}
	list, err := openList(a, lf.resource)
	if err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}

	if err := list.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", *id)
	return nil
}

func cmdBulkDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "bulk-delete")
	var lf listFlags
	lf.register(fs, false)
	rawIDs := fs.String("ids", "", "comma separated ids; trailing arguments are also taken as ids")
	if err := parse(fs, args); err != nil {
		return err
	}
	ids := splitIDs(*rawIDs, fs.Args())
	if len(ids) == 0 {
		return fmt.Errorf("%w: no ids given", errUsage)
	}
	list, err := openList(a, lf.resource)
	if err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}

	if err := list.BulkDelete(ctx, ids); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %d items\n", len(ids))
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "export")
	var lf listFlags
	lf.register(fs, true)
	format := fs.String("format", "csv", "csv or pdf")
	out := fs.String("out", "", "output file; defaults to <resource>.<format>, - for stdout")
	if err := parse(fs, args); err != nil {
		return err
	}
	renderer, ok := export.ForFormat(strings.ToLower(*format))
	if !ok {
		return fmt.Errorf("%w: unsupported format %q", errUsage, *format)
	}
	list, err := openList(a, lf.resource)
	if err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}
	if err := list.Fetch(ctx, lf.params); err != nil {
		return err
	}

	data, err := renderer.Render(list.Dataset())
	if err != nil {
		return err
	}
	if *out == "-" {
		_, err = a.out.Write(data)
		return err
	}
	path := *out
	if path == "" {
		path = lf.resource + "." + renderer.Extension()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %d rows to %s\n", len(list.Dataset().Rows), path)
	return nil
}

// cmdWatch keeps one list fresh and prints the page whenever it changes.
func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "watch")
	var lf listFlags
	lf.register(fs, true)
	interval := fs.Duration("interval", a.cfg.List.PollInterval, "refresh interval")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *interval <= 0 {
		*interval = defaultWatchInterval
	}
	list, err := openList(a, lf.resource)
	if err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}
	if err := list.Fetch(ctx, lf.params); err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		stopMetrics := serveMetrics(a, addr)
		defer stopMetrics()
	}

	last := fingerprint(list.Dataset())
	if err := printPage(a.out, list); err != nil {
		return err
	}

	list.AutoRefresh(ctx, *interval)
	defer list.StopAutoRefresh()

	ticker := time.NewTicker(*interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if fp := fingerprint(list.Dataset()); fp != last {
				last = fp
				fmt.Fprintf(a.out, "\n-- %s --\n", time.Now().Format(time.Kitchen))
				if err := printPage(a.out, list); err != nil {
					return err
				}
			}
		}
	}
}

func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// cmdDashboard loads the first page of every list concurrently.
func cmdDashboard(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "dashboard"), args); err != nil {
		return err
	}
	if err := a.requireSignedIn(); err != nil {
		return err
	}

	lists := make([]remoteList, len(resourceNames))
	for i, name := range resourceNames {
		list, err := openList(a, name)
		if err != nil {
			return err
		}
		lists[i] = list
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, list := range lists {
		g.Go(func() error {
			return list.Fetch(gctx, models.ListParams{Page: 1})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	user := a.session.Current().User
	fmt.Fprintf(a.out, "Welcome, %s\n", displayName(user))
	for _, list := range lists {
		fmt.Fprintln(a.out)
		if err := printPage(a.out, list); err != nil {
			return err
		}
	}
	return nil
}

func splitIDs(raw string, rest []string) []string {
	var ids []string
	for _, part := range append(strings.Split(raw, ","), rest...) {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func fingerprint(data export.Dataset) string {
	var b strings.Builder
	for _, row := range data.Rows {
		for _, h := range data.Headers {
			b.WriteString(row[h])
			b.WriteByte(0)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
