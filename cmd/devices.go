package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	adb "github.com/basiooo/goadb"
	"github.com/pkg/errors"

	"github.com/droidglass/droidglass/config"
	"github.com/droidglass/droidglass/internal/util"
)

func NewDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls"},
		Short:   "List adb-visible Android devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices()
		},
	}
}

func runDevices() error {
	client, err := adb.NewWithConfig(adb.ServerConfig{Port: config.GetADBPort()})
	if err != nil {
		return errors.Wrap(err, "failed to create adb client")
	}
	if err := client.StartServer(); err != nil {
		return errors.Wrap(err, "failed to start adb server")
	}

	infos, err := client.ListDevices()
	if err != nil {
		return errors.Wrap(err, "failed to list devices")
	}

	data := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		data = append(data, map[string]interface{}{
			"serial":  color.GreenString(info.Serial),
			"model":   info.Model,
			"product": info.Product,
		})
	}

	util.RenderTable([]util.TableColumn{
		{Header: "SERIAL", Key: "serial"},
		{Header: "MODEL", Key: "model"},
		{Header: "PRODUCT", Key: "product"},
	}, data)

	return nil
}
