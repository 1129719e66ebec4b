// Package signal sends and receives Signal messages via signal-cli.
//
// The assistant uses one registered Signal account. Users talk to it by
// messaging that number; reminders are delivered the same way. signal-cli
// must be installed and the account registered before use:
//
//	signal-cli -a +15551234567 register
//	signal-cli -a +15551234567 verify CODE_RECEIVED
//
// Example usage:
//
//	client, err := signal.NewClient("+15551234567")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = client.Send(ctx, "+15559876543", "Hello from MeetMate!")
//
//	err = client.ReceiveMessages(ctx, 5*time.Second, func(ctx context.Context, m signal.Message) {
//	    fmt.Printf("%s: %s\n", m.Sender, m.Text)
//	})
package signal
