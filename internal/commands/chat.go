package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/logging"
	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/roomname"
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/BioHazard786/huddle/internal/ui"
	"github.com/BioHazard786/huddle/internal/version"
)

const connectTimeout = 15 * time.Second

var (
	flagUser     string
	flagToken    string
	flagRoom     string
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagDevice   string
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c"},
	Short:   "Join a room and chat",
	Long: `Log in to a relay, join a room and chat from the terminal. Type /call to
start video signaling with everyone in the room.

Examples:
  huddle chat --user alice
  huddle chat --user alice --room lobby
  huddle chat -u bob -r lobby --server wss://relay.example.com
  huddle chat -u carol -r lobby --turn turn.example.com --turn-user u --turn-pass p --relay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(config.ClientOptions{
			Server:     flagServer,
			STUNServer: flagSTUN,
			TURNServer: flagTURN,
			TURNUser:   flagTURNUser,
			TURNPass:   flagTURNPass,
			ForceRelay: flagRelay,
			EnvFile:    flagEnvFile,
		})
		if err != nil {
			return err
		}
		if flagRoom == "" {
			if flagRoom, err = roomname.New(); err != nil {
				return err
			}
			ui.PrintInfof("No room given, created %s", ui.BoldStyle.Render(flagRoom))
		}
		return chat(cmd.Context(), cfg)
	},
}

func chat(ctx context.Context, cfg *config.Client) error {
	logger := logging.Init("")

	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	defer sp.Stop()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := signaling.NewClient(cfg.ServerURL, logger)
	if err := client.Connect(connectCtx); err != nil {
		return err
	}
	defer client.Close()

	handler := signaling.NewHandler(client)
	go handler.Start()

	sp.UpdateMessage(fmt.Sprintf("Logging in as %s...", flagUser))
	if err := handler.Login(connectCtx, flagUser, flagToken); err != nil {
		return err
	}
	sp.UpdateMessage(fmt.Sprintf("Joining %s...", flagRoom))
	if err := handler.Join(connectCtx, flagUser, flagRoom); err != nil {
		return err
	}
	sp.Stop()

	fmt.Println(ui.RoomInfo{UserID: flagUser, RoomID: flagRoom, Server: cfg.ServerURL}.View())

	manager, err := peer.NewManager(client, peer.Config{
		Configuration: peer.NewConfiguration(cfg),
		DeviceName:    deviceName(),
		Version:       version.Version,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer manager.CloseAll(true)

	session := NewChatSession(flagUser, flagRoom, client, handler, manager)
	program := tea.NewProgram(ui.NewChatModel(flagUser, flagRoom, session), tea.WithAltScreen())

	done := make(chan struct{})
	go session.Pump(program, done)
	defer close(done)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	return nil
}

func deviceName() string {
	if flagDevice != "" {
		return flagDevice
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "huddle-cli"
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&flagUser, "user", "u", "", "User id to log in as")
	chatCmd.Flags().StringVar(&flagToken, "token", "", "Login token")
	chatCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "Room to join (default a new random name)")
	chatCmd.Flags().StringVar(&flagServer, "server", "", "Relay address (default \"ws://localhost:3210/ws\")")
	chatCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	chatCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	chatCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	chatCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	chatCmd.Flags().BoolVar(&flagRelay, "relay", false, "Force relay mode")
	chatCmd.Flags().StringVar(&flagDevice, "name", "", "Device name shown to video peers (default hostname)")

	chatCmd.MarkFlagRequired("user")
}
