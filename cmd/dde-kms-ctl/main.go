package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"

	"github.com/linuxdeepin/dde-kms/display"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var logger = log.NewLogger("dde-kms-ctl")

var (
	optDebug   bool
	optProfile string

	rootCmd = &cobra.Command{
		Use:   "dde-kms-ctl",
		Short: "Control the outputs of dde-kms",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if optDebug {
				logger.SetLogLevel(log.LevelDebug)
			}
		},
		SilenceUsage: true,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List outputs and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			states, err := c.listOutputs()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENABLED\tMODE\tPOSITION\tSCALE\tTRANSFORM\tDPMS\tVRR\tLEASED")
			for _, st := range states {
				fmt.Fprintf(w, "%s\t%v\t%s\t%d,%d\t%g\t%s\t%s\t%s\t%v\n", st.Name, st.Enabled,
					st.Mode, st.X, st.Y, st.Scale, st.Transform, st.DpmsMode, st.VrrPolicy, st.Leased)
			}
			return w.Flush()
		},
	}

	applyCmd = &cobra.Command{
		Use:   "apply [json]",
		Short: "Apply output changes from a toml profile or a json object",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes map[string]*display.OutputChange
			var err error
			switch {
			case optProfile != "":
				changes, err = loadProfile(optProfile)
			case len(args) == 1:
				changes, err = display.ParseOutputChanges([]byte(args[0]))
			default:
				return fmt.Errorf("need a profile or json changes")
			}
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			return c.applyChanges(changes)
		},
	}

	dpmsCmd = &cobra.Command{
		Use:       "dpms on|standby|suspend|off",
		Short:     "Set the power mode of all outputs",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "standby", "suspend", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseEnum(args[0], 4, func(i uint32) string {
				return display.DpmsMode(i).String()
			})
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			return c.call("SetDpmsMode", mode).Err
		},
	}

	temperatureCmd = &cobra.Command{
		Use:   "temperature KELVIN",
		Short: "Set the color temperature, 0 resets it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kelvin, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			return c.call("SetColorTemperature", int32(kelvin)).Err
		},
	}

	leaseCmd = &cobra.Command{
		Use:   "lease OUTPUT...",
		Short: "Lease outputs until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			lesseeID, fd, err := c.createLease(args)
			if err != nil {
				return err
			}
			fmt.Printf("lessee %d, fd %d\n", lesseeID, fd)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, unix.SIGINT, unix.SIGTERM)
			<-sigChan
			err = c.call("RevokeLease", lesseeID).Err
			unix.Close(int(fd))
			return err
		},
	}
)

// simpleCmd returns a command calling a manager method without arguments.
func simpleCmd(use, short, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			return c.call(method).Err
		},
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&optDebug, "debug", "d", false, "debug")
	applyCmd.Flags().StringVarP(&optProfile, "file", "f", "", "toml layout profile")

	rootCmd.AddCommand(listCmd, applyCmd, dpmsCmd, temperatureCmd, leaseCmd,
		simpleCmd("rescan", "Rescan connectors", "Rescan"),
		simpleCmd("wakeup", "Turn outputs back on", "WakeUp"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
