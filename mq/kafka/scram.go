package kafka

import (
	"crypto/sha256"
	"crypto/sha512"

	"github.com/xdg-go/scram"
)

// SCRAM 哈希算法
var (
	SHA256 scram.HashGeneratorFcn = sha256.New
	SHA512 scram.HashGeneratorFcn = sha512.New
)

// scramClient 实现 sarama.SCRAMClient
type scramClient struct {
	hashFcn      scram.HashGeneratorFcn
	client       *scram.Client
	conversation *scram.ClientConversation
}

func newSCRAMClient(fcn scram.HashGeneratorFcn) *scramClient {
	return &scramClient{hashFcn: fcn}
}

func (c *scramClient) Begin(userName, password, authzID string) error {
	client, err := c.hashFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	c.client = client
	c.conversation = client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (string, error) {
	return c.conversation.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.conversation.Done()
}
