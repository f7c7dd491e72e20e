package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/config"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ipfs"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/metadata"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/server"
)

// newCreateQuizCmd runs the owner flow once and exits: publish the quiz
// definition to the content store, escrow the budget, mint the quiz object.
// It needs only the ipfs and ledger sections of the config, so owners can
// mint without a redis or postgres instance around.
func newCreateQuizCmd() *cobra.Command {
	var (
		name            string
		description     string
		projectTitle    string
		projectLinks    []string
		projectCoin     string
		minProjectCoins uint64
		passReward      uint64
		holdReward      uint64
		budget          uint64
	)

	cmd := &cobra.Command{
		Use:   "create-quiz",
		Short: "Publish a quiz definition and mint its ledger object",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c server.Config
			if err := config.Load(configPath, &c); err != nil {
				return err
			}

			store := ipfs.NewClient(ipfs.Config{
				PinURL:  c.IPFS.PinURL,
				Gateway: c.IPFS.Gateway,
				JWT:     c.IPFS.JWT,
			})

			signer, err := ledger.NewSigner(c.Ledger.SignerSeed)
			if err != nil {
				return fmt.Errorf("ledger signer: %w", err)
			}

			coordinator := ledger.NewCoordinator(ledger.Config{
				Client: ledger.NewClient(ledger.ClientConfig{URL: c.Ledger.RPCURL}),
				Signer: signer,
				Targets: ledger.Targets{
					Package:        c.Ledger.Package,
					RewardCoinType: c.Ledger.RewardCoinType,
				},
				GasBudget: c.Ledger.GasBudget,
			})

			def := domain.QuizDefinition{
				Name:            name,
				Description:     description,
				CreatedAt:       time.Now().UnixMilli(),
				ProjectTitle:    projectTitle,
				ProjectLinks:    projectLinks,
				ProjectCoinType: projectCoin,
				MinProjectCoins: minProjectCoins,
				PassReward:      passReward,
				HoldReward:      holdReward,
				Budget:          budget,
			}

			ctx := cmd.Context()

			uri, err := metadata.NewPublisher(store).Publish(ctx, def)
			if err != nil {
				return err
			}

			quizID, err := coordinator.FundAndMint(ctx, ledger.FundAndMintRequest{
				Name:        def.Name,
				Description: def.Description,
				ContentURI:  uri,
				Budget:      def.Budget,
				PassReward:  def.PassReward,
			})
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(map[string]string{
				"quizId":     quizID,
				"contentUri": uri,
				"owner":      coordinator.Address(),
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "quiz name")
	cmd.Flags().StringVar(&description, "description", "", "quiz description")
	cmd.Flags().StringVar(&projectTitle, "project-title", "", "project title")
	cmd.Flags().StringSliceVar(&projectLinks, "project-link", nil, "project link, repeatable")
	cmd.Flags().StringVar(&projectCoin, "project-coin", "", "project coin type tag")
	cmd.Flags().Uint64Var(&minProjectCoins, "min-project-coins", 0, "minimum holdings to take the quiz, smallest units")
	cmd.Flags().Uint64Var(&passReward, "pass-reward", 0, "reward per pass, smallest units")
	cmd.Flags().Uint64Var(&holdReward, "hold-reward", 0, "reward per holding period, smallest units")
	cmd.Flags().Uint64Var(&budget, "budget", 0, "escrowed budget, smallest units")

	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("project-link")
	_ = cmd.MarkFlagRequired("project-coin")
	_ = cmd.MarkFlagRequired("budget")

	return cmd
}
