package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// flags
var (
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "base url of the lottery daemon",
		Value: "http://localhost:7070",
	}
	buyerFlag = &cli.StringFlag{
		Name:     "buyer",
		Usage:    "address entering the round",
		Required: true,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "amount paid for the ticket, in base units",
		Required: true,
	}
	addressFlag = &cli.StringFlag{
		Name:     "address",
		Usage:    "address to operate on",
		Required: true,
	}
)

// commands
var (
	statusCmd = &cli.Command{
		Name:   "status",
		Usage:  "Get info about the current round",
		Action: statusAction,
		Flags:  []cli.Flag{urlFlag},
	}
	winnersCmd = &cli.Command{
		Name:   "winners",
		Usage:  "List resolved winners",
		Action: winnersAction,
		Flags:  []cli.Flag{urlFlag},
	}
	buyCmd = &cli.Command{
		Name:   "buy",
		Usage:  "Buy a ticket for the current round",
		Action: buyAction,
		Flags:  []cli.Flag{urlFlag, buyerFlag, amountFlag},
	}
	faucetCmd = &cli.Command{
		Name:   "faucet",
		Usage:  "Fund an address from the faucet",
		Action: faucetAction,
		Flags:  []cli.Flag{urlFlag, addressFlag},
	}
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Get the balance of an address",
		Action: balanceAction,
		Flags:  []cli.Flag{urlFlag, addressFlag},
	}
)

func statusAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/round", ctx.String("url"))
	info := &roundStatus{}
	if err := get(url, info); err != nil {
		return err
	}

	fmt.Println(info)
	return nil
}

func winnersAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/winners", ctx.String("url"))
	res := &winnerList{}
	if err := get(url, res); err != nil {
		return err
	}

	if len(res.Winners) <= 0 {
		fmt.Println("no winners yet")
		return nil
	}
	for _, record := range res.Winners {
		fmt.Println(record)
	}
	return nil
}

func buyAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/tickets", ctx.String("url"))
	body := fmt.Sprintf(
		`{"buyer": "%s", "amount": "%s"}`,
		ctx.String("buyer"), ctx.String("amount"),
	)

	info := &roundStatus{}
	if err := post(url, body, info); err != nil {
		return err
	}

	fmt.Println("ticket registered")
	fmt.Println(info)
	return nil
}

func faucetAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/faucet", ctx.String("url"))
	body := fmt.Sprintf(`{"address": "%s"}`, ctx.String("address"))

	res := &faucetReceipt{}
	if err := post(url, body, res); err != nil {
		return err
	}

	fmt.Printf("funded %s with %s\n", res.Address, res.Amount)
	return nil
}

func balanceAction(ctx *cli.Context) error {
	url := fmt.Sprintf(
		"%s/v1/balances/%s", ctx.String("url"), ctx.String("address"),
	)
	res := &balanceInfo{}
	if err := get(url, res); err != nil {
		return err
	}

	fmt.Println(res.Balance)
	return nil
}

type roundStatus struct {
	Seq         uint64 `json:"round_id"`
	State       string `json:"state"`
	OpenedAt    int64  `json:"opened_at"`
	TicketCount int    `json:"ticket_count"`
	PotAmount   string `json:"pot_amount"`
}

func (s roundStatus) String() string {
	return fmt.Sprintf(
		"round: %d\nstate: %s\nopened at: %s\ntickets: %d\npot: %s",
		s.Seq, s.State, time.Unix(s.OpenedAt, 0).Format(time.RFC3339),
		s.TicketCount, s.PotAmount,
	)
}

type winnerRecord struct {
	RoundSeq     uint64 `json:"round_id"`
	Winner       string `json:"winner"`
	PayoutAmount string `json:"payout_amount"`
	ResolvedAt   int64  `json:"resolved_at"`
}

func (r winnerRecord) String() string {
	return fmt.Sprintf(
		"round %d: %s won %s at %s",
		r.RoundSeq, r.Winner, r.PayoutAmount,
		time.Unix(r.ResolvedAt, 0).Format(time.RFC3339),
	)
}

type winnerList struct {
	Winners []winnerRecord `json:"winners"`
}

type faucetReceipt struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type balanceInfo struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func get(url string, result interface{}) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to get: %s", string(buf))
	}

	return json.Unmarshal(buf, result)
}

func post(url, body string, result interface{}) error {
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post: %s", string(buf))
	}

	return json.Unmarshal(buf, result)
}
