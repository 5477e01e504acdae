package config

// HookABI is the subset of the Naisu Uniswap V4 hook ABI used by the backend
const HookABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "intentId", "type": "bytes32"},
			{"indexed": true, "internalType": "address", "name": "user", "type": "address"},
			{"indexed": false, "internalType": "bytes32", "name": "suiDestination", "type": "bytes32"},
			{"indexed": false, "internalType": "address", "name": "inputToken", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "inputAmount", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "usdcAmount", "type": "uint256"},
			{"indexed": false, "internalType": "uint8", "name": "strategyId", "type": "uint8"},
			{"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
		],
		"name": "IntentCreated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "intentId", "type": "bytes32"},
			{"indexed": false, "internalType": "bytes32", "name": "lifiTransactionId", "type": "bytes32"}
		],
		"name": "IntentBridgeInitiated",
		"type": "event"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "intentId", "type": "bytes32"}],
		"name": "getIntent",
		"outputs": [
			{
				"components": [
					{"internalType": "address", "name": "user", "type": "address"},
					{"internalType": "bytes32", "name": "suiDestination", "type": "bytes32"},
					{"internalType": "address", "name": "inputToken", "type": "address"},
					{"internalType": "uint256", "name": "inputAmount", "type": "uint256"},
					{"internalType": "uint256", "name": "usdcAmount", "type": "uint256"},
					{"internalType": "uint8", "name": "strategyId", "type": "uint8"},
					{"internalType": "uint8", "name": "status", "type": "uint8"},
					{"internalType": "uint256", "name": "createdAt", "type": "uint256"}
				],
				"internalType": "struct NaisuIntentHook.Intent",
				"name": "",
				"type": "tuple"
			}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "nextIntentId",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20BalanceOfABI is used by the solver to check it can cover a fill
const ERC20BalanceOfABI = `[
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
