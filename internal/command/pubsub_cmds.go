package command

import "github.com/alxayo/go-kv/internal/resp"

func init() {
	register(Spec{Name: "SUBSCRIBE", MinArgc: 2, Parse: parseSubscribe})
	register(Spec{Name: "UNSUBSCRIBE", MinArgc: 2, Parse: parseUnsubscribe})
	register(Spec{Name: "PUBLISH", MinArgc: 3, Parse: parsePublish})
}

type SubscribeCmd struct{ Channel []byte }

func parseSubscribe(argv [][]byte) (Cmd, error) { return &SubscribeCmd{Channel: argv[1]}, nil }

func (c *SubscribeCmd) Exec(env *Env) Reply {
	ch := string(c.Channel)
	n := env.Sess.Subscribe(ch)
	env.PubSub.Subscribe(ch, env.Sess.ID(), env.Sess)
	return one(resp.ArrayValue(
		resp.BulkValue([]byte("subscribe")),
		resp.BulkValue(c.Channel),
		resp.IntValue(int64(n)),
	))
}

type UnsubscribeCmd struct{ Channel []byte }

func parseUnsubscribe(argv [][]byte) (Cmd, error) { return &UnsubscribeCmd{Channel: argv[1]}, nil }

func (c *UnsubscribeCmd) Exec(env *Env) Reply {
	ch := string(c.Channel)
	n := env.Sess.Unsubscribe(ch)
	env.PubSub.Unsubscribe(ch, env.Sess.ID())
	return one(resp.ArrayValue(
		resp.BulkValue([]byte("unsubscribe")),
		resp.BulkValue(c.Channel),
		resp.IntValue(int64(n)),
	))
}

type PublishCmd struct {
	Channel, Message []byte
}

func parsePublish(argv [][]byte) (Cmd, error) {
	return &PublishCmd{Channel: argv[1], Message: argv[2]}, nil
}

func (c *PublishCmd) Exec(env *Env) Reply {
	n := env.PubSub.Publish(string(c.Channel), c.Message)
	return one(resp.IntValue(int64(n)))
}
