package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/acquire"
	"github.com/schedscope/schedscope/pkg/browser"
	"github.com/schedscope/schedscope/pkg/cache"
	"github.com/schedscope/schedscope/pkg/catalog"
	"github.com/schedscope/schedscope/pkg/navigator"
	"github.com/schedscope/schedscope/pkg/whttp"
)

// navigatorConfig builds the navigator settings from the config file.
func navigatorConfig() (navigator.Config, error) {
	rules, err := navigator.ParseVariantRules(viper.GetStringSlice("site.group_variants"))
	if err != nil {
		return navigator.Config{}, fmt.Errorf("site.group_variants: %w", err)
	}
	return navigator.Config{
		BaseURL:     viper.GetString("site.base_url"),
		Institute:   viper.GetString("site.institute"),
		Course:      viper.GetString("site.course"),
		Categories:  viper.GetStringSlice("site.categories"),
		Variants:    rules,
		WaitTimeout: viper.GetDuration("browser.wait_timeout"),
		FormTimeout: viper.GetDuration("browser.form_timeout"),
		SettleDelay: viper.GetDuration("browser.settle_delay"),
	}, nil
}

func newLauncher() *browser.Launcher {
	return browser.New(browser.Config{
		RemoteURL:      viper.GetString("browser.remote_url"),
		Headless:       viper.GetBool("browser.headless"),
		BlockResources: viper.GetStringSlice("browser.block_resources"),
		Logger:         utils.Log,
	})
}

func openCache() (*cache.Store, error) {
	return cache.Open(viper.GetString("cache.dir"), cache.WithTTL(viper.GetDuration("cache.ttl")))
}

// newFetcher wires browser, navigator and cache together. The caller closes
// the returned launcher.
func newFetcher(noCache bool) (*acquire.Fetcher, *browser.Launcher, error) {
	cfg, err := navigatorConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := []acquire.Option{acquire.WithLogger(utils.Log), acquire.WithoutCache(noCache)}
	if !noCache {
		store, err := openCache()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, acquire.WithCache(store))
	}

	l := newLauncher()
	nav := navigator.New(cfg, utils.Log)
	return acquire.New(l, nav, opts...), l, nil
}

func newCatalog() *catalog.Client {
	c := whttp.NewClient(viper.GetFloat64("http.rate"), 3, utils.Log)
	return catalog.New(c, viper.GetString("site.groups_url"), utils.Log)
}
